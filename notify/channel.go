package notify

import (
	"context"

	goGuard "github.com/MrEthical07/goGuard"
)

// Channel hands notices to a buffered channel. Send blocks when the buffer
// is full until ctx is done.
type Channel struct {
	ch chan goGuard.RecoveryNotice
}

func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 1
	}
	return &Channel{ch: make(chan goGuard.RecoveryNotice, size)}
}

// Notices exposes the receive side.
func (c *Channel) Notices() <-chan goGuard.RecoveryNotice {
	return c.ch
}

// Send implements goGuard.Notifier.
func (c *Channel) Send(ctx context.Context, notice goGuard.RecoveryNotice) error {
	select {
	case c.ch <- notice:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
