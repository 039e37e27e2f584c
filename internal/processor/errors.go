package processor

import (
	"errors"
	"fmt"
)

// ErrChannelDisconnected is matched by every FatalError.
var ErrChannelDisconnected = errors.New("channel disconnected")

// Channel names one of the loop's channels.
type Channel string

const (
	ChannelInbound    Channel = "inbound"
	ChannelOutbound   Channel = "outbound"
	ChannelCompletion Channel = "completion"
)

// FatalError reports a broken channel. No further responses can be delivered
// once it is returned, so callers should terminate the process.
type FatalError struct {
	Channel Channel
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("unrecoverable %s channel failure: %v", e.Channel, e.Err)
}

func (e *FatalError) Unwrap() []error {
	return []error{ErrChannelDisconnected, e.Err}
}
