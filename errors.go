package synapse

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request, message or registry entry failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamNotReady indicates Message() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrToolNotFound indicates the requested tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrDecode indicates a tool-call marker was found but could not be decoded.
	ErrDecode = errors.New("error decoding tool request")

	// ErrMaxRounds indicates a turn used up its tool rounds without a final answer.
	ErrMaxRounds = errors.New("max tool rounds exceeded")

	// ErrAudioInvalid indicates audio input that is empty or too large.
	ErrAudioInvalid = errors.New("invalid audio")
)
