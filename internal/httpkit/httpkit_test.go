package httpkit

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient()
	if c.Timeout != DefaultTimeout {
		t.Errorf("expected %v timeout, got %v", DefaultTimeout, c.Timeout)
	}
}

func TestNewClient_CustomTimeout(t *testing.T) {
	c := NewClient(WithTimeout(5 * time.Second))
	if c.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", c.Timeout)
	}
}

func echoUserAgent() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
}

func getBody(t *testing.T, c *http.Client, req *http.Request) string {
	t.Helper()
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestNewClient_UserAgent(t *testing.T) {
	srv := echoUserAgent()
	defer srv.Close()

	tests := []struct {
		name    string
		opts    []ClientOption
		preset  string
		check   func(string) bool
		explain string
	}{
		{
			name:    "default",
			check:   func(ua string) bool { return strings.HasPrefix(ua, "imapnotify/") },
			explain: "imapnotify/ prefix",
		},
		{
			name:    "override",
			opts:    []ClientOption{WithUserAgent("TestBot/1.0")},
			check:   func(ua string) bool { return ua == "TestBot/1.0" },
			explain: "TestBot/1.0",
		},
		{
			name:    "empty override keeps default",
			opts:    []ClientOption{WithUserAgent("")},
			check:   func(ua string) bool { return strings.HasPrefix(ua, "imapnotify/") },
			explain: "imapnotify/ prefix",
		},
		{
			name:    "request header wins",
			preset:  "CustomBot/2.0",
			check:   func(ua string) bool { return ua == "CustomBot/2.0" },
			explain: "CustomBot/2.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			if tt.preset != "" {
				req.Header.Set("User-Agent", tt.preset)
			}
			got := getBody(t, NewClient(tt.opts...), req)
			if !tt.check(got) {
				t.Errorf("User-Agent = %q, want %s", got, tt.explain)
			}
		})
	}
}

func TestNewTransport_HasTimeouts(t *testing.T) {
	tr := NewTransport()
	if tr.TLSHandshakeTimeout != DefaultTLSHandshakeTimeout {
		t.Errorf("TLSHandshakeTimeout: got %v, want %v", tr.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout)
	}
	if tr.ResponseHeaderTimeout != DefaultResponseHeader {
		t.Errorf("ResponseHeaderTimeout: got %v, want %v", tr.ResponseHeaderTimeout, DefaultResponseHeader)
	}
	if tr.IdleConnTimeout != DefaultIdleConnTimeout {
		t.Errorf("IdleConnTimeout: got %v, want %v", tr.IdleConnTimeout, DefaultIdleConnTimeout)
	}
	if tr.MaxIdleConnsPerHost != DefaultMaxIdleConnsPerHost {
		t.Errorf("MaxIdleConnsPerHost: got %d, want %d", tr.MaxIdleConnsPerHost, DefaultMaxIdleConnsPerHost)
	}
}

func TestNewClient_UntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// The transport verifies certificates against the system roots.
	if _, err := NewClient(WithTimeout(2 * time.Second)).Get(srv.URL); err == nil {
		t.Fatal("expected TLS error for a self-signed certificate")
	}
}

func TestStripURL(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/botSECRET/sendMessage", nil)
	_, err = NewClient().Do(req)
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !strings.Contains(err.Error(), "SECRET") {
		t.Fatalf("precondition: client error should include URL, got %q", err)
	}

	stripped := StripURL(err)
	if strings.Contains(stripped.Error(), "SECRET") {
		t.Errorf("StripURL kept the URL: %q", stripped)
	}
	var opErr *net.OpError
	if !errors.As(stripped, &opErr) {
		t.Errorf("StripURL lost the underlying error: %v", stripped)
	}

	plain := errors.New("plain")
	if StripURL(plain) != plain {
		t.Error("StripURL should pass through non-URL errors")
	}
}

func TestDrainAndClose(t *testing.T) {
	rc := io.NopCloser(strings.NewReader("hello world"))
	DrainAndClose(rc, 1024)  // should not panic
	DrainAndClose(nil, 1024) // nil should not panic
}

func TestReadErrorBody(t *testing.T) {
	tests := []struct {
		name string
		rc   io.ReadCloser
		lim  int64
		want string
	}{
		{name: "whole", rc: io.NopCloser(strings.NewReader("error details here")), lim: 512, want: "error details here"},
		{name: "truncated", rc: io.NopCloser(strings.NewReader(strings.Repeat("x", 1000))), lim: 10, want: strings.Repeat("x", 10)},
		{name: "nil", rc: nil, lim: 512, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReadErrorBody(tt.rc, tt.lim); got != tt.want {
				t.Errorf("ReadErrorBody = %q, want %q", got, tt.want)
			}
		})
	}
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestReadErrorBody_Error(t *testing.T) {
	got := ReadErrorBody(io.NopCloser(failReader{}), 512)
	if !strings.Contains(got, "failed to read error body") {
		t.Errorf("expected read failure message, got %q", got)
	}
}
