// Package transport provides the HTTP round trippers used to reach the
// storefront service.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Fingerprint selects the TLS client hello presented to the storefront.
type Fingerprint string

const (
	FingerprintGo     Fingerprint = "go"     // crypto/tls defaults
	FingerprintChrome Fingerprint = "chrome" // uTLS HelloChrome_Auto
)

// RequestIDHeader is set on every outbound request that lacks one.
const RequestIDHeader = "X-Request-ID"

// Options configures New.
type Options struct {
	Timeout     time.Duration
	Fingerprint Fingerprint
	UserAgent   string
}

// New builds the round tripper chain for storefront calls: request tagging
// on top of either the standard transport or the Chrome fingerprint one.
func New(opts Options) (http.RoundTripper, error) {
	var base http.RoundTripper
	switch opts.Fingerprint {
	case "", FingerprintGo:
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Timeout > 0 {
			t.TLSHandshakeTimeout = opts.Timeout
		}
		base = t
	case FingerprintChrome:
		base = NewChromeTransport(opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown tls fingerprint %q", opts.Fingerprint)
	}
	return WithRequestTagging(base, opts.UserAgent), nil
}

// WithRequestTagging wraps next so every request carries a User-Agent and an
// X-Request-ID. An existing request ID is left alone so callers can correlate
// their own logs.
func WithRequestTagging(next http.RoundTripper, userAgent string) http.RoundTripper {
	return &taggingTransport{next: next, userAgent: userAgent}
}

type taggingTransport struct {
	next      http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper. The caller's request is never
// modified; a clone carries the added headers.
func (t *taggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if t.userAgent != "" {
		out.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(out)
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Go's standard TLS client has a distinctive fingerprint that some CDNs in
// front of hosted storefronts rate limit aggressively.
//
// This transport uses uTLS to present a Chrome-like TLS fingerprint with
// full HTTP/2 support:
//
//   1. Use uTLS with HelloChrome_Auto for Chrome's TLS fingerprint
//   2. Let ALPN negotiate naturally (h2, http/1.1)
//   3. Route to Go's http2.Transport when h2 was negotiated, otherwise to
//      an HTTP/1.1 transport
//
// The first handshake with a host decides its protocol. That connection is
// handed to the chosen transport rather than thrown away, and a request is
// only ever sent once.
//
// Plain http:// base URLs never reach the TLS dialers.
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint to the storefront. Supports both HTTP/2 and HTTP/1.1 based on
// ALPN negotiation.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	return newChromeTransport(timeout, nil)
}

func newChromeTransport(timeout time.Duration, rootCAs *x509.CertPool) *chromeTransport {
	t := &chromeTransport{
		dialer:  &net.Dialer{Timeout: timeout},
		rootCAs: rootCAs,
		protos:  make(map[string]string),
		parked:  make(map[string]*utls.UConn),
	}

	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return t.dialProto(ctx, network, addr, http2.NextProtoTLS)
		},
	}
	t.h1 = &http.Transport{
		DialContext: t.dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.dialProto(ctx, network, addr, "http/1.1")
		},
		ForceAttemptHTTP2: false,
	}
	return t
}

// chromeTransport wraps HTTP/2 and HTTP/1.1 transports with Chrome TLS fingerprint.
type chromeTransport struct {
	dialer  *net.Dialer
	rootCAs *x509.CertPool
	h2      *http2.Transport
	h1      *http.Transport

	mu     sync.Mutex
	protos map[string]string      // host:port -> negotiated ALPN protocol
	parked map[string]*utls.UConn // host:port -> handshaken conn not yet claimed
}

// RoundTrip implements http.RoundTripper. HTTPS requests go to the transport
// matching the protocol the host negotiated; plain HTTP goes straight to
// HTTP/1.1.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	proto, err := t.protocol(req.Context(), hostPort(req.URL))
	if err != nil {
		return nil, err
	}
	if proto == http2.NextProtoTLS {
		return t.h2.RoundTrip(req)
	}
	return t.h1.RoundTrip(req)
}

// protocol returns the ALPN protocol addr negotiates, handshaking once to
// learn it. The handshaken conn is parked for the transport that will use it.
func (t *chromeTransport) protocol(ctx context.Context, addr string) (string, error) {
	t.mu.Lock()
	proto, ok := t.protos[addr]
	t.mu.Unlock()
	if ok {
		return proto, nil
	}

	conn, err := t.dialChromeTLS(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	proto = negotiated(conn)

	t.mu.Lock()
	defer t.mu.Unlock()
	if known, ok := t.protos[addr]; ok {
		conn.Close()
		return known, nil
	}
	t.protos[addr] = proto
	t.parked[addr] = conn
	return proto, nil
}

// dialProto returns a conn to addr speaking want, preferring a parked one.
// A fresh handshake that negotiates something else is an error; the host's
// cached protocol is dropped so the next request asks again.
func (t *chromeTransport) dialProto(ctx context.Context, network, addr, want string) (net.Conn, error) {
	t.mu.Lock()
	conn, ok := t.parked[addr]
	delete(t.parked, addr)
	t.mu.Unlock()

	if !ok {
		var err error
		if conn, err = t.dialChromeTLS(ctx, network, addr); err != nil {
			return nil, err
		}
	}
	if got := negotiated(conn); got != want {
		conn.Close()
		t.mu.Lock()
		delete(t.protos, addr)
		t.mu.Unlock()
		return nil, fmt.Errorf("tls alpn: %s negotiated %q, want %q", addr, got, want)
	}
	return conn, nil
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func (t *chromeTransport) dialChromeTLS(ctx context.Context, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConfig := &utls.Config{
		ServerName: host,
		RootCAs:    t.rootCAs,
	}
	tlsConn := utls.UClient(conn, tlsConfig, utls.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}

// negotiated returns conn's ALPN protocol, treating none as HTTP/1.1.
func negotiated(conn *utls.UConn) string {
	if p := conn.ConnectionState().NegotiatedProtocol; p != "" {
		return p
	}
	return "http/1.1"
}

// hostPort returns u's host with the default HTTPS port filled in, matching
// the addr both transports hand to their dialers.
func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
