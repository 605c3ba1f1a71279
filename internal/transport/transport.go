// Package transport provides the blocking TCP/TLS byte transport under a
// WebSocket connection: bounded-time dialing, timed partial reads and
// all-or-error writes.
package transport

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"sutext.github.io/cord/xerr"
)

// Conn is a connected transport. Reads are sliced by short deadlines so the
// caller can weave in periodic bookkeeping; writes block until complete.
type Conn struct {
	conn net.Conn
	once sync.Once
}

// Dial resolves host, connects within timeout and, for useTLS, performs the
// TLS client handshake with host as SNI. Address candidates are tried in
// order by the net dialer; the deadline covers the whole attempt.
func Dial(host string, port int, useTLS bool, timeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := net.Dialer{Timeout: timeout}
	raw, err := d.Dial("tcp", addr)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, xerr.Errorf(xerr.Timeout, "connect %s: %v", addr, err)
		}
		return nil, xerr.Errorf(xerr.TransportFailed, "connect %s: %v", addr, err)
	}
	if !useTLS {
		return &Conn{conn: raw}, nil
	}
	tc := tls.Client(raw, &tls.Config{ServerName: host})
	tc.SetDeadline(time.Now().Add(timeout))
	if err := tc.Handshake(); err != nil {
		raw.Close()
		return nil, xerr.Errorf(xerr.TLSFailed, "tls handshake with %s: %v", addr, err)
	}
	tc.SetDeadline(time.Time{})
	return &Conn{conn: tc}, nil
}

// SendAll writes every byte of p or fails.
func (c *Conn) SendAll(p []byte) error {
	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return xerr.Errorf(xerr.TransportFailed, "write: %v", err)
		}
		p = p[n:]
	}
	return nil
}

// RecvSome waits up to timeout for data and reads whatever is available.
// It returns 0 with a nil error when the timeout elapses, a Closed error
// when the peer closed the connection, and a TransportFailed error on any
// hard failure.
func (c *Conn) RecvSome(buf []byte, timeout time.Duration) (int, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := c.conn.Read(buf)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 0, nil
	}
	if errors.Is(err, io.EOF) {
		return 0, xerr.New(xerr.Closed, "peer closed connection")
	}
	return 0, xerr.Errorf(xerr.TransportFailed, "read: %v", err)
}

// Close shuts the connection down. For TLS this sends the close alert as a
// side effect of closing. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
