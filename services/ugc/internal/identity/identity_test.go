package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTruncateIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.1.42", "192.168.1"},
		{" 10.0.0.1 ", "10.0.0"},
		{"2001:DB8:85A3:0000:0000:8A2E:0370:7334", "2001:db8:85a3:0000"},
		{"::1", "::1"},
		{"fe80::", "fe80"},
		{"localhost", "localhost"},
		{"1.2", "1.2"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range tests {
		if got := TruncateIP(tc.in); got != tc.want {
			t.Errorf("TruncateIP(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHasher(t *testing.T) {
	h := NewHasher("secret")

	a := h.ClientHash("client-1")
	if a == "" || a != h.ClientHash(" client-1 ") {
		t.Fatalf("expected stable non-empty hash, got %q", a)
	}
	if a == h.ClientHash("client-2") {
		t.Fatal("different clients must hash differently")
	}
	if NewHasher("other").ClientHash("client-1") == a {
		t.Fatal("hash must depend on the secret")
	}
	if h.ClientHash("") != "" || h.IPHash("") != "" {
		t.Fatal("blank input must yield empty hash")
	}
	if h.IPHash("192.168.1.1") != h.IPHash("192.168.1.200") {
		t.Fatal("addresses in the same /24 must share a hash")
	}
	if h.IPHash("192.168.1.1") == h.ClientHash("192.168.1") {
		t.Fatal("ip and client hashes must not collide")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:5123"
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("expected remote addr host, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "unknown")
	r.Header.Set("Proxy-Client-IP", "198.51.100.7, 10.0.0.1")
	if got := ClientIP(r); got != "198.51.100.7" {
		t.Fatalf("expected first proxy hop, got %q", got)
	}

	r.Header.Set("X-Forwarded-For", " 192.0.2.1 ,10.0.0.2")
	if got := ClientIP(r); got != "192.0.2.1" {
		t.Fatalf("expected X-Forwarded-For to win, got %q", got)
	}
}

func TestRemoteIP_IgnoresForwardingHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.4:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := RemoteIP(r); got != "203.0.113.4" {
		t.Fatalf("expected connection address, got %q", got)
	}

	r.RemoteAddr = "pipe"
	if got := RemoteIP(r); got != "pipe" {
		t.Fatalf("expected raw RemoteAddr without a port, got %q", got)
	}
}

func TestClientID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ClientID(r, "cid"); got != "" {
		t.Fatalf("expected empty client id, got %q", got)
	}

	r.Header.Set(ClientIDHeader, "from-header")
	if got := ClientID(r, "cid"); got != "from-header" {
		t.Fatalf("expected header fallback, got %q", got)
	}

	r.AddCookie(&http.Cookie{Name: "cid", Value: "from-cookie"})
	if got := ClientID(r, "cid"); got != "from-cookie" {
		t.Fatalf("expected cookie value, got %q", got)
	}
}
