// Package endpoint resolves WebSocket URLs into connectable endpoints.
package endpoint

import (
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"sutext.github.io/cord/xerr"
)

// Scheme selects the transport security of an endpoint.
type Scheme uint8

const (
	SchemeWS Scheme = iota
	SchemeWSS
)

func (s Scheme) String() string {
	switch s {
	case SchemeWS:
		return "ws"
	case SchemeWSS:
		return "wss"
	default:
		return "unknown"
	}
}

// Secure reports whether the scheme requires TLS.
func (s Scheme) Secure() bool {
	return s == SchemeWSS
}

// DefaultPort returns the port implied by the scheme when the URL names none.
func (s Scheme) DefaultPort() int {
	if s == SchemeWSS {
		return 443
	}
	return 80
}

// Endpoint is a parsed WebSocket URL. Path always begins with "/"; Query is
// the raw string after "?" without the separator.
type Endpoint struct {
	Scheme Scheme
	Host   string
	Port   int
	Path   string
	Query  string
}

// Address returns the host:port pair for dialing.
func (e *Endpoint) Address() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// RequestPath returns the path with the query reattached, as it appears on
// the HTTP request line.
func (e *Endpoint) RequestPath() string {
	if e.Query == "" {
		return e.Path
	}
	return e.Path + "?" + e.Query
}

func (e *Endpoint) String() string {
	return e.Scheme.String() + "://" + e.Address() + e.RequestPath()
}

// Parse decomposes a ws:// or wss:// URL. It validates scheme, host and port
// but does not percent-decode any component.
func Parse(raw string) (*Endpoint, error) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return nil, xerr.New(xerr.BadURL, "missing scheme")
	}
	var scheme Scheme
	switch raw[:idx] {
	case "ws":
		scheme = SchemeWS
	case "wss":
		scheme = SchemeWSS
	default:
		return nil, xerr.Errorf(xerr.BadURL, "scheme must be ws or wss, got %q", raw[:idx])
	}
	rest := raw[idx+3:]
	authority := rest
	path := "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority = rest[:i]
		path = rest[i:]
	}
	var query string
	if q := strings.IndexByte(path, '?'); q >= 0 {
		query = path[q+1:]
		path = path[:q]
	}
	host := authority
	port := scheme.DefaultPort()
	if c := strings.IndexByte(authority, ':'); c >= 0 {
		host = authority[:c]
		p, err := parsePort(authority[c+1:])
		if err != nil {
			return nil, err
		}
		port = p
	}
	if host == "" {
		return nil, xerr.New(xerr.BadURL, "missing host")
	}
	host, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, xerr.Errorf(xerr.BadURL, "bad host: %v", err)
	}
	return &Endpoint{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   path,
		Query:  query,
	}, nil
}

func parsePort(s string) (int, error) {
	if s == "" {
		return 0, xerr.New(xerr.BadURL, "empty port")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, xerr.Errorf(xerr.BadURL, "bad port %q", s)
		}
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, xerr.Errorf(xerr.BadURL, "port %q out of range", s)
	}
	return p, nil
}
