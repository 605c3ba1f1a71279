// Package cord implements a WebSocket (RFC 6455) client: the opening HTTP
// handshake, the frame codec with client-side masking, the control-frame
// state machine and a single worker goroutine per connection that couples
// the receive loop, the heartbeat and the closing handshake.
package cord

import (
	"sutext.github.io/cord/client"
)

// NewClient creates a WebSocket client. The connection is established by
// Connect and torn down by Disconnect; a client may be reconnected after it
// has fully closed.
func NewClient(options ...client.Option) client.Client {
	return client.New(options...)
}
