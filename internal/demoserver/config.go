package demoserver

import "time"

// Config holds configuration for the demo server.
type Config struct {
	// Port is the port on which the demo server listens.
	Port int

	// Owner is the login of the account the token acts as.
	Owner string

	// Token, when set, must be presented as a bearer token on API calls.
	Token string

	// RequireRootIndex makes pages creation fail with 422 until the
	// repository has an index.html at its root.
	RequireRootIndex bool

	// BuildPolls is how many pages reads report "building" before the
	// site is reported as "built".
	BuildPolls int

	// Latency is added to every API response.
	Latency time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:       9999,
		Owner:      "demo-user",
		BuildPolls: 1,
	}
}
