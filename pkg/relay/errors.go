package relay

import "errors"

// Sentinel errors returned by the core pipeline. Boundaries (per-language
// fan-out task, per-connection dispatch loop, per-segment pipeline) convert
// unexpected panics or vendor errors into one of these before logging and
// continuing — nothing inside the core algorithms swallows an error
// silently.
var (
	ErrEmptyTranscript     = errors.New("relay: empty or too-short transcript")
	ErrNoRecipients        = errors.New("relay: no target languages for speaker")
	ErrSessionEnded        = errors.New("relay: session has ended")
	ErrSessionNotFound     = errors.New("relay: session not found")
	ErrParticipantNotFound = errors.New("relay: participant not found")
	ErrDuplicateTranscript = errors.New("relay: duplicate transcript within dedup window")
	ErrVendorTimeout       = errors.New("relay: vendor call timed out")
	ErrVendorUnavailable   = errors.New("relay: vendor call failed")
	ErrPolicyViolation     = errors.New("relay: policy violation")
	ErrChunkerShutdown     = errors.New("relay: chunker is shut down")
	ErrStreamEnded         = errors.New("relay: interim session already ended")
)
