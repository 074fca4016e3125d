// Package httputil provides shared HTTP client plumbing for the SDK's
// outbound calls.
package httputil

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewTransport clones http.DefaultTransport (when possible), enforces TLS
// 1.2+ and optionally disables certificate verification. Skipping
// verification is only for development against intercepting proxies; the
// caller is expected to have logged a warning.
func NewTransport(insecureSkipVerify bool) http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}

	cloned := base.Clone()
	if cloned.TLSClientConfig != nil {
		cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
	} else {
		cloned.TLSClientConfig = &tls.Config{}
	}
	if cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
		cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
	}
	cloned.TLSClientConfig.InsecureSkipVerify = insecureSkipVerify
	return cloned
}

// CopyClientWithTimeout returns a shallow copy of base, setting Timeout only
// when base has none. It never mutates the caller-provided instance. A nil base yields a fresh
// client.
func CopyClientWithTimeout(base *http.Client, timeout time.Duration) *http.Client {
	if base == nil {
		return &http.Client{Timeout: timeout}
	}
	copied := *base
	if copied.Timeout == 0 {
		copied.Timeout = timeout
	}
	return &copied
}
