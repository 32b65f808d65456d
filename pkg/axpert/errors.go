package axpert

import "errors"

// Transport level errors. These are surfaced as-is and never retried inside
// this package; retry policy belongs to the caller.
var (
	ErrWriteFailed = errors.New("axpert: transport write failed")
	ErrTimeout     = errors.New("axpert: timed out waiting for response")
	ErrOverflow    = errors.New("axpert: response exceeds maximum frame size")
)

// Frame level errors. A response that fails frame validation is discarded
// without any attempt at schema decoding.
var (
	ErrTruncated   = errors.New("axpert: response frame has no terminator")
	ErrCRCMismatch = errors.New("axpert: response CRC mismatch")
)

// Dispatch errors.
var (
	// ErrUnknownMnemonic means the mnemonic is not in the registry. This is
	// a usage error, not a protocol error: no device I/O has happened.
	ErrUnknownMnemonic = errors.New("axpert: unknown mnemonic")

	// ErrSchemaMismatch means the decoded token or flag count disagrees with
	// the registered schema. Either the registry is wrong or the device runs
	// an unexpected firmware variant.
	ErrSchemaMismatch = errors.New("axpert: response does not match schema")

	// ErrUnverifiedSchema wraps decode failures for schemas the protocol
	// documentation marks as not reliably working. Callers can use this to
	// tell firmware variance apart from registry bugs.
	ErrUnverifiedSchema = errors.New("axpert: schema is unverified for this firmware")
)
