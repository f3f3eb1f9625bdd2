package plumbz

import "errors"

var (
	// ErrNilDestination is the panic value of Pipe when called with a nil
	// destination.
	ErrNilDestination = errors.New("plumbz: pipe destination is nil")

	// ErrUnknownHandler is returned for a Config naming a handler other than
	// HandlerLog or HandlerOff.
	ErrUnknownHandler = errors.New("plumbz: unknown handler")
)
