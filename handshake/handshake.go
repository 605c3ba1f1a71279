// Package handshake builds and validates the RFC 6455 opening handshake:
// the client key, the upgrade request and the cryptographic acceptance
// check binding the server response to the client nonce.
package handshake

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"sutext.github.io/cord/endpoint"
	"sutext.github.io/cord/xerr"
)

// GUID is the fixed key suffix from RFC 6455 section 1.3.
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// MaxResponseHeader bounds the server's response header block.
const MaxResponseHeader = 32 * 1024

// NewKey generates the Sec-WebSocket-Key value: 16 random bytes, base64.
func NewKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// AcceptFor computes the Sec-WebSocket-Accept value the server must return
// for the given key: base64(SHA-1(key + GUID)).
func AcceptFor(key string) string {
	sum := sha1.Sum([]byte(key + GUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// BuildRequest assembles the HTTP/1.1 upgrade request. Extra headers and
// extensions are emitted in sorted order so the request is deterministic.
func BuildRequest(ep *endpoint.Endpoint, key string, headers, extensions map[string]string) []byte {
	var b strings.Builder
	b.WriteString("GET ")
	b.WriteString(ep.RequestPath())
	b.WriteString(" HTTP/1.1\r\n")
	b.WriteString("Host: ")
	b.WriteString(ep.Host)
	if ep.Port != ep.Scheme.DefaultPort() {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(ep.Port))
	}
	b.WriteString("\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Key: ")
	b.WriteString(key)
	b.WriteString("\r\n")
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	for _, k := range sortedKeys(headers) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headers[k])
		b.WriteString("\r\n")
	}
	if len(extensions) > 0 {
		b.WriteString("Sec-WebSocket-Extensions: ")
		for i, name := range sortedKeys(extensions) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name)
			if params := extensions[name]; params != "" {
				b.WriteString("; ")
				b.WriteString(params)
			}
		}
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ValidateResponse checks the server's response header block against the
// expected accept value. The block is everything before the terminating
// blank line, without the terminator itself.
func ValidateResponse(header string, expectedAccept string) error {
	lines := strings.Split(header, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return xerr.New(xerr.HandshakeFailed, "empty response")
	}
	status := strings.TrimSpace(lines[0])
	if !strings.Contains(status, "HTTP/1.1 101") {
		return xerr.Errorf(xerr.HandshakeFailed, "bad status: %s", status)
	}
	var hasUpgrade, hasConnection, hasAccept, acceptSeen bool
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			break
		}
		c := strings.IndexByte(line, ':')
		if c < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:c]))
		value := strings.TrimSpace(line[c+1:])
		switch name {
		case "upgrade":
			if httpguts.HeaderValuesContainsToken([]string{value}, "websocket") {
				hasUpgrade = true
			}
		case "connection":
			if httpguts.HeaderValuesContainsToken([]string{value}, "Upgrade") {
				hasConnection = true
			}
		case "sec-websocket-accept":
			acceptSeen = true
			if value == expectedAccept {
				hasAccept = true
			}
		}
	}
	if !hasUpgrade {
		return xerr.New(xerr.HandshakeFailed, "missing or invalid Upgrade header")
	}
	if !hasConnection {
		return xerr.New(xerr.HandshakeFailed, "missing or invalid Connection header")
	}
	if !hasAccept {
		if acceptSeen {
			return xerr.New(xerr.HandshakeFailed, "Sec-WebSocket-Accept mismatch")
		}
		return xerr.New(xerr.HandshakeFailed, "missing Sec-WebSocket-Accept header")
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
