package client

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"sutext.github.io/cord/endpoint"
	"sutext.github.io/cord/frame"
	"sutext.github.io/cord/handshake"
	"sutext.github.io/cord/internal/keepalive"
	"sutext.github.io/cord/internal/transport"
	"sutext.github.io/cord/xerr"
	"sutext.github.io/cord/xlog"
)

const (
	// recvSlice bounds each blocking receive so the worker stays responsive
	// to the stop flag and heartbeat ticks without busy-waiting.
	recvSlice = 200 * time.Millisecond
	// handshakeSlice bounds each read while waiting for the upgrade
	// response inside the overall handshake deadline.
	handshakeSlice = 500 * time.Millisecond
	recvChunk      = 4096
)

type Client interface {
	// Connect parses url, establishes the transport, performs the opening
	// handshake and starts the receive worker. Valid only while closed.
	Connect(url string) error
	// Disconnect initiates the closing handshake when open, waits for the
	// worker to exit and closes the transport. Idempotent.
	Disconnect()
	// SendText emits one final TEXT frame. Valid only while open.
	SendText(text string) error
	// SendBinary emits one final BINARY frame. Valid only while open.
	SendBinary(data []byte) error
	// Ping emits a PING frame with the given payload (at most 125 bytes).
	Ping(payload []byte) error
	// State reports the current connection state.
	State() State
}

type client struct {
	opts    *Options
	logger  *xlog.Logger
	handler Handler

	state atomic.Uint32
	stop  atomic.Bool

	sendMu sync.Mutex
	conn   *transport.Conn
	done   chan struct{}

	mu         sync.Mutex // guards teardown bookkeeping
	closeFired bool
}

func New(options ...Option) Client {
	opts := newOptions(options...)
	return &client{
		opts:    opts,
		logger:  opts.logger,
		handler: opts.handler,
	}
}

func (c *client) State() State {
	return State(c.state.Load())
}

func (c *client) cas(from, to State) bool {
	if c.state.CompareAndSwap(uint32(from), uint32(to)) {
		c.logger.Debug("state change", xlog.Str("from", from.String()), xlog.Str("to", to.String()))
		return true
	}
	return false
}

func (c *client) Connect(rawurl string) error {
	if !c.cas(StateClosed, StateConnecting) {
		return xerr.Errorf(xerr.NotOpen, "connect: connection is %s, not closed", c.State())
	}
	if err := c.dial(rawurl); err != nil {
		c.state.Store(uint32(StateClosed))
		c.logger.Debug("connect failed", xlog.Url(rawurl), xlog.Err(err))
		return err
	}
	return nil
}

func (c *client) dial(rawurl string) error {
	if c.opts.transform != nil {
		return xerr.New(xerr.BadArgument, "payload transform requires extension negotiation this client does not implement")
	}
	ep, err := endpoint.Parse(rawurl)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.opts.timeout)
	conn, err := transport.Dial(ep.Host, ep.Port, ep.Scheme.Secure(), c.opts.timeout)
	if err != nil {
		return err
	}
	key, err := handshake.NewKey()
	if err != nil {
		conn.Close()
		return xerr.Errorf(xerr.HandshakeFailed, "generate key: %v", err)
	}
	req := handshake.BuildRequest(ep, key, c.opts.headers, c.opts.extensions)
	if err := conn.SendAll(req); err != nil {
		conn.Close()
		return err
	}
	header, leftover, err := readUpgradeResponse(conn, deadline)
	if err != nil {
		conn.Close()
		return err
	}
	if err := handshake.ValidateResponse(header, handshake.AcceptFor(key)); err != nil {
		conn.Close()
		return err
	}
	c.conn = conn
	c.stop.Store(false)
	c.done = make(chan struct{})
	c.mu.Lock()
	c.closeFired = false
	c.mu.Unlock()
	c.state.Store(uint32(StateOpen))
	c.logger.Info("connection open", xlog.Url(rawurl), xlog.Addr(conn.RemoteAddr()))
	c.handler.OnOpen()
	go c.run(leftover)
	return nil
}

// readUpgradeResponse accumulates bytes until the header terminator, in
// slices bounded by the overall deadline. Bytes after the terminator are
// returned so the worker starts with them in its receive buffer.
func readUpgradeResponse(conn *transport.Conn, deadline time.Time) (string, []byte, error) {
	var buf []byte
	tmp := make([]byte, 2048)
	for {
		if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
			return string(buf[:idx]), buf[idx+4:], nil
		}
		if len(buf) > handshake.MaxResponseHeader {
			return "", nil, xerr.New(xerr.HandshakeFailed, "response header too large")
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return "", nil, xerr.New(xerr.Timeout, "handshake timeout")
		}
		if remain > handshakeSlice {
			remain = handshakeSlice
		}
		n, err := conn.RecvSome(tmp, remain)
		if err != nil {
			return "", nil, err
		}
		buf = append(buf, tmp[:n]...)
	}
}

func (c *client) Disconnect() {
	switch c.State() {
	case StateClosed, StateConnecting:
		// Connect owns the Connecting state; there is no worker yet and the
		// dialing goroutine will finish its own transition.
		return
	case StateOpen:
		if c.cas(StateOpen, StateClosing) {
			if f, err := frame.NewMasked(frame.Close, nil); err == nil {
				c.writeFrame(f)
			}
		}
	}
	c.stop.Store(true)
	if c.done != nil {
		<-c.done
	}
	c.teardown()
}

func (c *client) SendText(text string) error {
	return c.send(frame.Text, []byte(text))
}

func (c *client) SendBinary(data []byte) error {
	return c.send(frame.Binary, data)
}

func (c *client) Ping(payload []byte) error {
	return c.send(frame.Ping, payload)
}

func (c *client) send(op frame.Opcode, payload []byte) error {
	if c.State() != StateOpen {
		return xerr.Errorf(xerr.NotOpen, "send %s: connection is not open", op)
	}
	f, err := frame.NewMasked(op, payload)
	if err != nil {
		return xerr.Errorf(xerr.BadArgument, "send %s: %v", op, err)
	}
	return c.writeFrame(f)
}

// writeFrame serializes encode+write so frames from the worker and from
// user goroutines never interleave on the wire.
func (c *client) writeFrame(f *frame.Frame) error {
	data := frame.Encode(f)
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.SendAll(data); err != nil {
		return err
	}
	c.logger.Debug("frame sent", xlog.Str("opcode", f.Opcode.String()), xlog.Size(len(f.Payload)))
	return nil
}

// run is the connection worker: one goroutine owning the receive buffer,
// the heartbeat and the dispatch of every inbound frame.
func (c *client) run(leftover []byte) {
	defer func() {
		c.teardown()
		close(c.done)
	}()
	buf := leftover
	tmp := make([]byte, recvChunk)
	hb := keepalive.New(c.opts.pingInterval, c.opts.pongTimeout)
	s := &session{c: c, hb: hb}
	for !c.stop.Load() {
		now := time.Now()
		if hb.Expired(now) {
			c.fail(xerr.New(xerr.Timeout, "pong timeout"))
			return
		}
		if hb.ShouldPing(now) {
			f, err := frame.NewMasked(frame.Ping, nil)
			if err == nil {
				err = c.writeFrame(f)
			}
			if err != nil {
				c.fail(err)
				return
			}
			hb.PingSent(now)
		}
		// Bytes that followed the upgrade response are decoded before the
		// first read, so frames flushed with the 101 are not held back.
		n, err := 0, error(nil)
		if len(leftover) == 0 {
			n, err = c.conn.RecvSome(tmp, recvSlice)
		}
		if err != nil {
			if !c.stop.Load() {
				c.fail(err)
			}
			return
		}
		if n == 0 && len(leftover) == 0 {
			continue
		}
		leftover = nil
		buf = append(buf, tmp[:n]...)
		for len(buf) > 0 && !c.stop.Load() {
			f, consumed, derr := frame.Decode(buf, c.opts.maxFrameSize)
			if derr == frame.ErrNeedMore {
				break
			}
			if derr != nil {
				c.fail(xerr.Errorf(xerr.ProtocolViolation, "decode frame: %v", derr))
				return
			}
			buf = buf[consumed:]
			if err := s.handle(f); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// fail reports a worker-detected failure and initiates close. It is a no-op
// when a close is already in flight.
func (c *client) fail(err error) {
	if c.stop.Swap(true) {
		return
	}
	c.logger.Error("connection failed", xlog.Err(err))
	c.cas(StateOpen, StateClosing)
	c.handler.OnError(err)
}

// teardown closes the transport, parks the state machine at Closed and
// fires OnClose at most once per connect cycle.
func (c *client) teardown() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	prev := State(c.state.Swap(uint32(StateClosed)))
	fire := !c.closeFired && prev != StateClosed
	c.closeFired = true
	c.mu.Unlock()
	if fire {
		c.logger.Info("connection closed")
		c.handler.OnClose()
	}
}

// session carries the worker-local dispatch state, most of it the
// reassembly of one fragmented message.
type session struct {
	c        *client
	hb       *keepalive.Tracker
	fragOpen bool
	fragOp   frame.Opcode
	fragData []byte
}

func (s *session) handle(f *frame.Frame) error {
	c := s.c
	c.logger.Debug("frame received", xlog.Str("opcode", f.Opcode.String()), xlog.Size(len(f.Payload)))
	switch f.Opcode {
	case frame.Text, frame.Binary:
		if s.fragOpen {
			return xerr.New(xerr.ProtocolViolation, "data frame interleaved with fragmented message")
		}
		if !f.Final {
			s.fragOpen = true
			s.fragOp = f.Opcode
			s.fragData = append([]byte(nil), f.Payload...)
			return nil
		}
		s.deliver(f.Opcode, f.Payload)
	case frame.Continuation:
		if !s.fragOpen {
			return xerr.New(xerr.ProtocolViolation, "continuation frame without initiating frame")
		}
		s.fragData = append(s.fragData, f.Payload...)
		if f.Final {
			s.deliver(s.fragOp, s.fragData)
			s.fragOpen = false
			s.fragData = nil
		}
	case frame.Ping:
		pong, err := frame.NewMasked(frame.Pong, f.Payload)
		if err == nil {
			err = c.writeFrame(pong)
		}
		if err != nil {
			return err
		}
	case frame.Pong:
		s.hb.PongReceived()
	case frame.Close:
		if c.cas(StateOpen, StateClosing) {
			if echo, err := frame.NewMasked(frame.Close, nil); err == nil {
				c.writeFrame(echo)
			}
		}
		c.stop.Store(true)
	default:
		return xerr.Errorf(xerr.ProtocolViolation, "unknown opcode 0x%x", byte(f.Opcode))
	}
	return nil
}

func (s *session) deliver(op frame.Opcode, payload []byte) {
	if op == frame.Text {
		s.c.handler.OnText(string(payload))
		return
	}
	s.c.handler.OnBinary(payload)
}
