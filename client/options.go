package client

import (
	"time"

	"sutext.github.io/cord/xlog"
)

// Handler receives connection events. Callbacks run on the connection
// worker goroutine (OnOpen runs on the caller of Connect) and must not
// block indefinitely. Handlers are set before Connect and must not change
// afterwards.
type Handler interface {
	OnOpen()
	OnText(text string)
	OnBinary(data []byte)
	OnClose()
	OnError(err error)
}

type emptyHandler struct{}

func (h *emptyHandler) OnOpen()         {}
func (h *emptyHandler) OnText(string)   {}
func (h *emptyHandler) OnBinary([]byte) {}
func (h *emptyHandler) OnClose()        {}
func (h *emptyHandler) OnError(error)   {}

// Transform is the plug-in point for a negotiated payload transform such as
// permessage-deflate. The engine does not manage the RSV1 bit, so a
// configured transform is rejected at Connect rather than producing
// non-conformant frames.
type Transform interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type Options struct {
	timeout      time.Duration
	maxFrameSize int
	pingInterval time.Duration
	pongTimeout  time.Duration
	headers      map[string]string
	extensions   map[string]string
	transform    Transform
	handler      Handler
	logger       *xlog.Logger
}

type Option struct {
	f func(*Options)
}

func newOptions(options ...Option) *Options {
	opts := &Options{
		timeout:      time.Second * 5,
		maxFrameSize: 1 << 20,
		pingInterval: time.Second * 30,
		pongTimeout:  time.Second * 10,
		handler:      &emptyHandler{},
		logger:       xlog.Default(),
	}
	for _, o := range options {
		o.f(opts)
	}
	return opts
}

// WithTimeout bounds the combined TCP connect and handshake exchange.
func WithTimeout(timeout time.Duration) Option {
	return Option{f: func(o *Options) {
		o.timeout = timeout
	}}
}

// WithMaxFrameSize bounds decoded frame payloads; larger frames are a
// protocol failure.
func WithMaxFrameSize(size int) Option {
	return Option{f: func(o *Options) {
		o.maxFrameSize = size
	}}
}

// WithHeartbeat sets the unsolicited ping interval and how long to wait for
// the matching pong before declaring the link dead. A zero interval
// disables heartbeats; a zero timeout disables the pong check.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return Option{f: func(o *Options) {
		o.pingInterval = interval
		o.pongTimeout = timeout
	}}
}

// WithHeader appends an extra header to the upgrade request.
func WithHeader(name, value string) Option {
	return Option{f: func(o *Options) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[name] = value
	}}
}

// WithExtension adds an entry to the Sec-WebSocket-Extensions header.
func WithExtension(name, params string) Option {
	return Option{f: func(o *Options) {
		if o.extensions == nil {
			o.extensions = make(map[string]string)
		}
		o.extensions[name] = params
	}}
}

// WithTransform installs a payload transform hook.
func WithTransform(t Transform) Option {
	return Option{f: func(o *Options) {
		o.transform = t
	}}
}

func WithHandler(handler Handler) Option {
	return Option{f: func(o *Options) {
		o.handler = handler
	}}
}

func WithLogger(logger *xlog.Logger) Option {
	return Option{f: func(o *Options) {
		o.logger = logger
	}}
}
