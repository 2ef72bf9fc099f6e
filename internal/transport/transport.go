// Package transport builds the HTTP clients used to reach the shop backend.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Options controls NewClient.
type Options struct {
	// Timeout bounds every request, including reading the body.
	Timeout time.Duration

	// BrowserTLS presents a Chrome TLS fingerprint instead of Go's.
	// Some hosting fronts throttle or block clients with a non-browser
	// fingerprint; the shop backend is often deployed behind one.
	BrowserTLS bool
}

// NewClient returns an http.Client for backend calls.
func NewClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if opts.BrowserTLS {
		client.Transport = NewChromeTransport(timeout)
	}
	return client
}

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. The protocol for each host is fixed by the ALPN result of the
// first handshake: HTTP/2 when the server picks h2, HTTP/1.1 otherwise.
// A failed request is never re-sent over the other protocol.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	return newChromeTransport(timeout, nil)
}

func newChromeTransport(timeout time.Duration, rootCAs *x509.CertPool) *chromeTransport {
	t := &chromeTransport{
		dialer:  &net.Dialer{Timeout: timeout},
		rootCAs: rootCAs,
		protos:  make(map[string]string),
		spare:   make(map[string]net.Conn),
	}

	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return t.dial(ctx, network, addr)
		},
	}
	t.h1 = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.dial(ctx, network, addr)
		},
		ForceAttemptHTTP2: false,
	}
	return t
}

// chromeTransport routes https requests through the fingerprinting dialer.
// Plain http requests (local backends) go straight to HTTP/1.1.
type chromeTransport struct {
	dialer  *net.Dialer
	rootCAs *x509.CertPool

	h2 *http2.Transport
	h1 *http.Transport

	mu     sync.Mutex
	protos map[string]string   // host:port -> negotiated ALPN protocol
	spare  map[string]net.Conn // handshaken conn left over from learning protos
}

func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	proto, err := t.protocol(req.Context(), hostPort(req))
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	if proto == http2.NextProtoTLS {
		return t.h2.RoundTrip(req)
	}
	return t.h1.RoundTrip(req)
}

// protocol returns the ALPN protocol the server at addr negotiates, dialing
// once to learn it. The learning connection is kept for the first real dial.
func (t *chromeTransport) protocol(ctx context.Context, addr string) (string, error) {
	t.mu.Lock()
	proto, ok := t.protos[addr]
	t.mu.Unlock()
	if ok {
		return proto, nil
	}

	conn, err := dialChromeTLS(ctx, t.dialer, "tcp", addr, t.rootCAs)
	if err != nil {
		return "", err
	}
	proto = conn.ConnectionState().NegotiatedProtocol

	t.mu.Lock()
	defer t.mu.Unlock()
	if known, ok := t.protos[addr]; ok {
		conn.Close()
		return known, nil
	}
	t.protos[addr] = proto
	t.spare[addr] = conn
	return proto, nil
}

func (t *chromeTransport) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	t.mu.Lock()
	conn, ok := t.spare[addr]
	delete(t.spare, addr)
	t.mu.Unlock()
	if ok {
		return conn, nil
	}

	tlsConn, err := dialChromeTLS(ctx, t.dialer, network, addr, t.rootCAs)
	if err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// CloseIdleConnections closes idle connections of both protocols.
func (t *chromeTransport) CloseIdleConnections() {
	t.h1.CloseIdleConnections()
	t.h2.CloseIdleConnections()

	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, conn := range t.spare {
		conn.Close()
		delete(t.spare, addr)
	}
}

// hostPort returns the dial address for req, defaulting to port 443.
func hostPort(req *http.Request) string {
	port := req.URL.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(req.URL.Hostname(), port)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
// A nil rootCAs uses the system roots.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string, rootCAs *x509.CertPool) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host, RootCAs: rootCAs}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
