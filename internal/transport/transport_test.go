package transport

import (
	"net"
	"testing"
	"time"

	"sutext.github.io/cord/xerr"
)

func startListener(t *testing.T, handle func(conn net.Conn)) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestDialAndRoundTrip(t *testing.T) {
	host, port := startListener(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	})
	c, err := Dial(host, port, false, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if err := c.SendAll([]byte("hello transport")); err != nil {
		t.Fatalf("SendAll: %v", err)
	}
	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	for len(got) < len("hello transport") && time.Now().Before(deadline) {
		n, err := c.RecvSome(buf, 100*time.Millisecond)
		if err != nil {
			t.Fatalf("RecvSome: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "hello transport" {
		t.Errorf("echo = %q", got)
	}
}

func TestRecvSomeTimeout(t *testing.T) {
	host, port := startListener(t, func(conn net.Conn) {
		// hold the connection open, send nothing
		time.Sleep(2 * time.Second)
		conn.Close()
	})
	c, err := Dial(host, port, false, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	start := time.Now()
	n, err := c.RecvSome(make([]byte, 16), 100*time.Millisecond)
	if n != 0 || err != nil {
		t.Errorf("timeout slice: n=%d err=%v", n, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout slice took %v", elapsed)
	}
}

func TestRecvSomePeerClose(t *testing.T) {
	host, port := startListener(t, func(conn net.Conn) {
		conn.Close()
	})
	c, err := Dial(host, port, false, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := c.RecvSome(make([]byte, 16), 100*time.Millisecond)
		if err != nil {
			if xerr.CodeOf(err) != xerr.Closed {
				t.Errorf("peer close: want closed, got %v", err)
			}
			return
		}
		if n != 0 {
			t.Fatalf("unexpected data: %d bytes", n)
		}
	}
	t.Fatal("peer close never observed")
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	_, err = Dial("127.0.0.1", port, false, time.Second)
	if xerr.CodeOf(err) != xerr.TransportFailed {
		t.Errorf("refused dial: want transport failed, got %v", err)
	}
}

func TestDialTimeout(t *testing.T) {
	// Non-routable address per RFC 5737; either a timeout or an immediate
	// route error is acceptable depending on the host network.
	_, err := Dial("192.0.2.1", 81, false, 200*time.Millisecond)
	if err == nil {
		t.Fatal("dial to non-routable address succeeded")
	}
	if code := xerr.CodeOf(err); code != xerr.Timeout && code != xerr.TransportFailed {
		t.Errorf("unexpected code %v", code)
	}
}

func TestDialTLSAgainstPlainListener(t *testing.T) {
	host, port := startListener(t, func(conn net.Conn) {
		// answer the ClientHello with garbage
		conn.Write([]byte("not a tls server\r\n"))
		conn.Close()
	})
	_, err := Dial(host, port, true, time.Second)
	if xerr.CodeOf(err) != xerr.TLSFailed {
		t.Errorf("want tls failure, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	host, port := startListener(t, func(conn net.Conn) {
		time.Sleep(100 * time.Millisecond)
		conn.Close()
	})
	c, err := Dial(host, port, false, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
