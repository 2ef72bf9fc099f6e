package transport

import (
	"bytes"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{})
	if c.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", c.Timeout)
	}
	if c.Transport != nil {
		t.Errorf("Transport = %T, want default transport", c.Transport)
	}
}

func TestNewClient_BrowserTLS(t *testing.T) {
	c := NewClient(Options{Timeout: 5 * time.Second, BrowserTLS: true})
	if c.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.Timeout)
	}
	if _, ok := c.Transport.(*chromeTransport); !ok {
		t.Errorf("Transport = %T, want *chromeTransport", c.Transport)
	}
}

func TestChromeTransport_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte("echo:" + string(body)))
	}))
	defer srv.Close()

	c := NewClient(Options{Timeout: 5 * time.Second, BrowserTLS: true})
	resp, err := c.Post(srv.URL, "text/plain", strings.NewReader("hi"))
	if err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	defer resp.Body.Close()

	got, _ := io.ReadAll(resp.Body)
	if string(got) != "echo:hi" {
		t.Errorf("body = %q, want %q", got, "echo:hi")
	}
}

// tlsBackend starts a TLS test server and a chrome transport trusting it.
func tlsBackend(t *testing.T, h2 bool, handler http.HandlerFunc) (*httptest.Server, *chromeTransport) {
	t.Helper()
	srv := httptest.NewUnstartedServer(handler)
	srv.EnableHTTP2 = h2
	srv.StartTLS()
	t.Cleanup(srv.Close)

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	tr := newChromeTransport(5*time.Second, roots)
	t.Cleanup(tr.CloseIdleConnections)
	return srv, tr
}

func TestChromeTransport_NegotiatedProtocol(t *testing.T) {
	tests := []struct {
		name      string
		h2        bool
		wantMajor int
	}{
		{"server offers h2", true, 2},
		{"server offers http/1.1 only", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, tr := tlsBackend(t, tt.h2, func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				w.Write([]byte("echo:" + string(body)))
			})
			client := &http.Client{Transport: tr}

			for i := 0; i < 2; i++ {
				resp, err := client.Post(srv.URL+"/orders", "text/plain", strings.NewReader("hi"))
				if err != nil {
					t.Fatalf("request %d: Post() error: %v", i, err)
				}
				got, _ := io.ReadAll(resp.Body)
				resp.Body.Close()

				if resp.ProtoMajor != tt.wantMajor {
					t.Errorf("request %d: proto = %s, want major %d", i, resp.Proto, tt.wantMajor)
				}
				if string(got) != "echo:hi" {
					t.Errorf("request %d: body = %q, want %q", i, got, "echo:hi")
				}
			}

			tr.mu.Lock()
			defer tr.mu.Unlock()
			if len(tr.protos) != 1 {
				t.Errorf("protos = %v, want one learned host", tr.protos)
			}
			if len(tr.spare) != 0 {
				t.Errorf("spare conns = %d, want the learning conn reused", len(tr.spare))
			}
		})
	}
}

func TestChromeTransport_FailedPostIsNotResent(t *testing.T) {
	var received atomic.Int32
	srv, tr := tlsBackend(t, true, func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		received.Add(1)
		// The backend took the order, then the stream dies before a reply.
		panic(http.ErrAbortHandler)
	})
	client := &http.Client{Transport: tr}

	resp, err := client.Post(srv.URL+"/orders", "application/json", bytes.NewReader([]byte(`{"total":2500}`)))
	if err == nil {
		resp.Body.Close()
		t.Fatal("Post() succeeded, want stream error")
	}
	if n := received.Load(); n != 1 {
		t.Errorf("backend received %d POSTs, want exactly 1", n)
	}
}

func TestChromeTransport_DialFailure(t *testing.T) {
	srv, tr := tlsBackend(t, true, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()

	client := &http.Client{Transport: tr}
	if _, err := client.Get(url); err == nil {
		t.Fatal("Get() against a closed server succeeded")
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.protos) != 0 {
		t.Errorf("protos = %v, want nothing learned from a failed dial", tr.protos)
	}
}
