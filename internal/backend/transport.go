// File: internal/backend/transport.go
// Description: HTTP transport tuned for many small, latency-sensitive calls
// against a single backend host. Streaming responses must not be buffered or
// recompressed along the way.

package backend

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout           = 5 * time.Second
	defaultKeepAliveInterval     = 15 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second

	// The client talks to one backend host, so the per-host pool is what
	// matters. Idle connections are kept warm between overlay interactions.
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
)

// newTransport builds the shared transport for all backend calls.
func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   defaultDialTimeout,
		KeepAlive: defaultKeepAliveInterval,
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ForceAttemptHTTP2:     true,
		// Compression would buffer the simplification stream; chunks must
		// surface the moment the server flushes them.
		DisableCompression: true,
	}
}

// newHTTPClient wraps the transport. Redirects are not followed: the backend
// never redirects, and silently following one would re-send the bearer token
// to an unexpected host.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: newTransport(),
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
