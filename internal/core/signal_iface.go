package core

//go:generate mockgen -destination=mocks/signal_mock.go -package=mocks github.com/dkeye/coroom/internal/core SignalConnection

import "errors"

// Frame is one encoded message ready for the wire.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking; ErrBackpressure when the queue is full.
	TrySend(Frame) error
	Close()
}
