package sgml

import "errors"

// Sentinel errors returned by the parser. Callers should match with
// errors.Is since most are returned wrapped with extra context.
var (
	// ErrInvalidArgument signals a bad call: both or neither of
	// Source.Content/Source.Path set, or an index out of range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMalformedInput signals an unreadable or unscannable source.
	// Irregular tag structure inside a readable submission never produces
	// this error; missing fields simply come back absent.
	ErrMalformedInput = errors.New("malformed input")

	// ErrEmptyInput signals a zero-length source passed to OpenStream.
	ErrEmptyInput = errors.New("empty input")

	// ErrSequence signals an illegal rewind: a batch was requested to start
	// before the cursor's current position. Cursors are forward-only.
	ErrSequence = errors.New("sequence violation")
)
