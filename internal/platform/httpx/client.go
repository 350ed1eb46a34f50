// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package httpx builds the outbound HTTP clients used for the cloud, the LAN
// server and the machine itself.
package httpx

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
)

type options struct {
	tlsConfig  *tls.Config
	tracing    bool
	noRedirect bool
	jar        http.CookieJar
}

// Option customizes NewClient.
type Option func(*options)

// WithTLSConfig sets the TLS configuration of the transport.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithTracing wraps the transport with OpenTelemetry instrumentation.
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

// WithoutRedirects makes the client return 3xx responses instead of following them.
func WithoutRedirects() Option {
	return func(o *options) { o.noRedirect = true }
}

// WithCookieJar attaches a cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(o *options) { o.jar = jar }
}

// NewClient returns a hardened HTTP client. Dial and header timeouts are
// capped so a dead host fails fast even with a long overall timeout.
func NewClient(timeout time.Duration, opts ...Option) *http.Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	dialTimeout := min(timeout, defaultDialTimeout)
	headerTimeout := min(timeout, defaultResponseHeaderTimeout)

	var rt http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		TLSClientConfig:       o.tlsConfig,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
	if o.tracing {
		rt = otelhttp.NewTransport(rt)
	}

	c := &http.Client{Timeout: timeout, Transport: rt, Jar: o.jar}
	if o.noRedirect {
		c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return c
}

// DeviceTLSConfig builds the TLS settings for talking to the machine. The
// machine presents a self-signed certificate, so verification is off unless
// verify is set or a CA bundle is given.
func DeviceTLSConfig(verify bool, caPath string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caPath != "" {
		// #nosec G304 -- CA path is operator configured
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no certificates", caPath)
		}
		cfg.RootCAs = pool
		return cfg, nil
	}
	if !verify {
		cfg.InsecureSkipVerify = true // #nosec G402 -- machine uses a self-signed certificate
	}
	return cfg, nil
}
