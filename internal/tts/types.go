// Package tts defines the synthesis backend capability contract and its
// provider implementations. The pipeline core depends only on Backend and the
// transient/fatal error split; it never branches on provider identity.
package tts

import (
	"context"
	"errors"
	"fmt"
)

// Backend is the contract a speech provider must satisfy.
type Backend interface {
	// Name identifies the provider; it namespaces cache entries.
	Name() string
	// OutputFormat reports how Synthesize bytes are encoded: "wav" for
	// self-describing clips, "pcm" for raw 16-bit little-endian samples.
	OutputFormat() string
	// Fingerprint is a canonical serialization of every configuration field
	// that affects synthesis output. Equal fingerprints plus equal text must
	// mean byte-identical output. Changing what goes into it invalidates all
	// prior cache entries.
	Fingerprint() string
	// Synthesize renders text into encoded audio bytes.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// TransientError marks a failure worth retrying: network trouble, timeouts,
// rate limits.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure retrying cannot fix: bad credentials, malformed
// requests.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Fatal wraps err as non-retryable. Returns nil for nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsTransient reports whether err carries a TransientError in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
