// Package webclient builds the *http.Client the provider SDK sends its
// requests through.
package webclient

import (
	"net/http"
	"time"

	"github.com/raysh454/sitedrop/internal/logging"
)

// NewNetHTTPClient returns an *http.Client that logs every request and stamps
// the configured User-Agent. httpClient may be nil; otherwise its transport
// and redirect policy are reused and the returned client is a copy.
func NewNetHTTPClient(cfg Config, logger logging.Logger, httpClient *http.Client) *http.Client {
	componentLogger := logger.With(logging.Field{Key: "component", Value: "webclient"})

	var out http.Client
	if httpClient != nil {
		out = *httpClient
	}
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	base := out.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	out.Transport = &loggingTransport{base: base, userAgent: cfg.UserAgent, logger: componentLogger}

	componentLogger.Debug("created nethttp webclient",
		logging.Field{Key: "timeout", Value: out.Timeout.String()})
	return &out
}

type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
	logger    logging.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	start := time.Now()
	t.logger.Debug("sending http request",
		logging.Field{Key: "method", Value: req.Method},
		logging.Field{Key: "url", Value: req.URL.Redacted()})

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Warn("http request failed",
			logging.Field{Key: "method", Value: req.Method},
			logging.Field{Key: "url", Value: req.URL.Redacted()},
			logging.Err(err))
		return nil, err
	}

	fields := []logging.Field{
		{Key: "method", Value: req.Method},
		{Key: "url", Value: req.URL.Redacted()},
		{Key: "status", Value: resp.StatusCode},
		{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	}
	if resp.StatusCode >= 500 {
		t.logger.Warn("http request returned server error", fields...)
	} else {
		t.logger.Debug("http response received", fields...)
	}
	return resp, nil
}
