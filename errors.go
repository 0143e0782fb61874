package owinbridge

import "errors"

var (
	// ErrNilEngine is returned by New when no engine is given.
	ErrNilEngine = errors.New("owinbridge: nil engine")
	// ErrInvalidOptions wraps an Options validation failure.
	ErrInvalidOptions = errors.New("owinbridge: invalid options")
	// ErrEngine wraps an error reported by the engine.
	ErrEngine = errors.New("owinbridge: engine failed")
	// ErrEnginePanic reports a panic raised by the engine or one of its
	// response delegates.
	ErrEnginePanic = errors.New("owinbridge: engine panicked")
	// ErrWriteBody wraps an error returned while writing the response body.
	ErrWriteBody = errors.New("owinbridge: writing response body")
)
