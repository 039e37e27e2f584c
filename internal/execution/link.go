package execution

import "errors"

var (
	// ErrEmpty is returned by TryReceive when no request is ready.
	ErrEmpty = errors.New("execution link empty")
	// ErrDisconnected is returned once the other end of a link is gone.
	ErrDisconnected = errors.New("execution link disconnected")
)

//go:generate mockgen -destination=../mocks/mock_link.go -package=mocks github.com/chachacholly/kairoi/internal/execution Link

// Link is the dispatch loop's view of the channel pair connecting it to the
// job store. Implementations must be safe for one receiving goroutine and one
// sending goroutine at a time.
type Link interface {
	// TryReceive returns the next ready request without blocking. It returns
	// ErrEmpty when nothing is ready and ErrDisconnected once the inbound side
	// has been closed and fully drained.
	TryReceive() (Request, error)

	// Send hands a response to the job store. It returns ErrDisconnected once
	// the store has detached from the outbound side.
	Send(Response) error
}
