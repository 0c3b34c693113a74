package network

import (
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Transport tuning for probe traffic. Probes are small authenticated GETs
// against platform endpoints, so the pool stays shallow.
const (
	defaultDialTimeout           = 15 * time.Second
	defaultKeepAlive             = 30 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 20 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultMaxIdleConns          = 8
	defaultMaxIdleConnsPerHost   = 4
)

// ProbeClientConfig controls construction of the session probe client.
type ProbeClientConfig struct {
	// Timeout bounds an entire probe exchange including body read.
	Timeout time.Duration

	// UserAgent is sent on every probe so the platform sees the same
	// browser identity the automated tab presents.
	UserAgent string

	// FollowRedirects keeps the default redirect-chasing behavior when
	// true. Session validation leaves it false: a redirect to a login
	// page is the signal being probed for.
	FollowRedirects bool
}

// ProbeClient is an http.Client paired with its cookie jar. The jar is
// exposed so the session layer can seed it from browser cookies before
// probing and read back whatever the platform set.
type ProbeClient struct {
	*http.Client
	Jar       *cookiejar.Jar
	userAgent string
}

// NewProbeClient builds a client with a public-suffix-aware cookie jar and
// transparent response decompression. Cross-domain cookie scoping matters
// here: platform auth cookies span subdomains (www, account, api) and an
// ordinary jar would mis-scope them at eTLD+1 boundaries.
func NewProbeClient(cfg ProbeClientConfig) (*ProbeClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,

		// The middleware owns Accept-Encoding and decompression.
		DisableCompression: true,
	}

	client := &http.Client{
		Transport: NewCompressionMiddleware(transport),
		Jar:       jar,
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &ProbeClient{
		Client:    client,
		Jar:       jar,
		userAgent: cfg.UserAgent,
	}, nil
}

// Do applies the probe identity headers before delegating.
func (pc *ProbeClient) Do(req *http.Request) (*http.Response, error) {
	if pc.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", pc.userAgent)
	}
	return pc.Client.Do(req)
}
