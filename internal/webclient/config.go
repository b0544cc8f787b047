package webclient

import "time"

// Config controls the outbound HTTP client used to talk to the provider API.
type Config struct {
	// Timeout bounds a whole request including reading the body. 0 keeps
	// the base client's timeout.
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, UserAgent: "sitedrop"}
}
