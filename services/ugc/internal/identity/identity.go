// Package identity derives the pseudonymous visitor fingerprints stored on
// every record: a keyed hash of the client-id cookie and a keyed hash of
// the truncated client IP.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// ClientIPHeaders are consulted in order before falling back to the
// connection address.
var ClientIPHeaders = []string{
	"X-Forwarded-For",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
	"HTTP_X_FORWARDED_FOR",
	"HTTP_CLIENT_IP",
	"HTTP_X_FORWARDED",
	"HTTP_X_CLUSTER_CLIENT_IP",
	"HTTP_FORWARDED_FOR",
	"HTTP_FORWARDED",
}

// ClientIDHeader carries the client id for callers that cannot use cookies.
const ClientIDHeader = "X-Client-Id"

type Hasher struct {
	secret []byte
}

func NewHasher(secret string) Hasher {
	return Hasher{secret: []byte(secret)}
}

// ClientHash fingerprints a client id. Blank input yields "".
func (h Hasher) ClientHash(clientID string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ""
	}
	return h.digest("client", clientID)
}

// IPHash fingerprints the truncated form of ip. Blank input yields "".
func (h Hasher) IPHash(ip string) string {
	t := TruncateIP(ip)
	if t == "" {
		return ""
	}
	return h.digest("ip", t)
}

func (h Hasher) digest(kind, value string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(kind))
	mac.Write([]byte("|"))
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// TruncateIP keeps the network part of an address: three octets for IPv4,
// four groups for IPv6. Anything else is returned normalised.
func TruncateIP(ip string) string {
	n := strings.ToLower(strings.TrimSpace(ip))
	if n == "" {
		return ""
	}
	if strings.Contains(n, ":") {
		parts := trimTrailingEmpty(strings.Split(n, ":"))
		if len(parts) > 4 {
			parts = parts[:4]
		}
		return strings.Join(parts, ":")
	}
	parts := strings.Split(n, ".")
	if len(parts) >= 3 {
		return strings.Join(parts[:3], ".")
	}
	return n
}

func trimTrailingEmpty(parts []string) []string {
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// ClientIP returns the first usable forwarding header value, or the
// connection address without its port.
func ClientIP(r *http.Request) string {
	for _, h := range ClientIPHeaders {
		v := strings.TrimSpace(r.Header.Get(h))
		if v == "" || strings.EqualFold(v, "unknown") {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		return strings.TrimSpace(first)
	}
	return RemoteIP(r)
}

// RemoteIP returns the connection address without its port, ignoring
// forwarding headers.
func RemoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientID reads the client id cookie, then the X-Client-Id header.
func ClientID(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			if v := strings.TrimSpace(c.Value); v != "" {
				return v
			}
		}
	}
	return strings.TrimSpace(r.Header.Get(ClientIDHeader))
}
