package axpert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client drives a single inverter transport. The protocol is strictly
// half-duplex with one outstanding exchange per handle, so every exchange
// holds the client mutex: interleaved chunks from two requests would
// corrupt framing on the device side.
type Client struct {
	mu        sync.Mutex
	transport Transport

	chunkDelay time.Duration
	timeout    time.Duration
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-exchange response timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithChunkDelay sets the pause between 8-byte chunk writes.
func WithChunkDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.chunkDelay = d }
}

// WithLogger attaches a logger for wire-level debug output.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient wraps an already-open transport. The client does not own
// opening or device configuration, only the exchanges; Close closes the
// underlying transport.
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport:  t,
		chunkDelay: DefaultChunkDelay,
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Close() error {
	return c.transport.Close()
}

// ExecOption configures a single Execute call.
type ExecOption func(*decodeOptions)

// WithUnits attaches each field's unit to its decoded value.
func WithUnits() ExecOption {
	return func(o *decodeOptions) { o.withUnits = true }
}

// WithRawBitfield skips bitfield decoding and returns the flag digits as a
// single raw field.
func WithRawBitfield() ExecOption {
	return func(o *decodeOptions) { o.rawBitfield = true }
}

// Result is the outcome of one exchange: exactly one of Query or Command
// is set, according to the mnemonic's registered kind.
type Result struct {
	Mnemonic string
	Kind     EntryKind
	Query    *QueryResult
	Command  *CommandOutcome
}

// Execute performs exactly one request/response exchange for mnemonic.
//
// Unknown mnemonics fail with ErrUnknownMnemonic before any device I/O.
// Frame or transport failures are returned as-is without schema decoding.
// For commands, NAK produces a CommandOutcome with Acknowledged false, not
// an error. There are no retries at this layer; callers may retry queries
// (commands are not guaranteed idempotent at the device).
func (c *Client) Execute(ctx context.Context, mnemonic string, opts ...ExecOption) (*Result, error) {
	entry, ok := Resolve(mnemonic)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMnemonic, mnemonic)
	}

	var dopts decodeOptions
	for _, opt := range opts {
		opt(&dopts)
	}

	payload, err := c.exchange(ctx, mnemonic)
	if err != nil {
		return nil, err
	}

	if entry.Kind == KindCommand {
		outcome := &CommandOutcome{
			Mnemonic:     mnemonic,
			Acknowledged: payload == "ACK",
			Raw:          payload,
		}
		if !outcome.Acknowledged && payload != "NAK" {
			return nil, fmt.Errorf("%w: command response %q is neither ACK nor NAK", ErrSchemaMismatch, payload)
		}
		c.logger.Debug("command outcome", zap.String("mnemonic", mnemonic), zap.Bool("ack", outcome.Acknowledged))
		return &Result{Mnemonic: mnemonic, Kind: KindCommand, Command: outcome}, nil
	}

	query, err := entry.Schema.decode(mnemonic, payload, dopts)
	if err != nil {
		return nil, err
	}
	return &Result{Mnemonic: mnemonic, Kind: KindQuery, Query: query}, nil
}

// Query is a convenience wrapper for query mnemonics.
func (c *Client) Query(ctx context.Context, mnemonic string, opts ...ExecOption) (*QueryResult, error) {
	res, err := c.Execute(ctx, mnemonic, opts...)
	if err != nil {
		return nil, err
	}
	if res.Kind != KindQuery {
		return nil, fmt.Errorf("%w: %q is a command, not a query", ErrUnknownMnemonic, mnemonic)
	}
	return res.Query, nil
}

// exchange performs the frame-level request/response round trip and
// returns the validated response payload.
func (c *Client) exchange(ctx context.Context, mnemonic string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	frame := EncodeFrame(mnemonic)
	c.logger.Debug("sending frame", zap.String("mnemonic", mnemonic), zap.Binary("frame", frame))
	if err := sendFrame(c.transport, frame, c.chunkDelay); err != nil {
		return "", err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	raw, err := readFrame(c.transport, timeout)
	if err != nil {
		return "", err
	}
	c.logger.Debug("received frame", zap.String("mnemonic", mnemonic), zap.Binary("raw", raw))

	payload, err := DecodeFrame(raw)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Resync drains stray bytes from the transport until a terminator or the
// timeout. Call it after abandoning an in-flight exchange: the transport's
// read position is undefined at that point and the next exchange would
// otherwise pick up leftovers of the previous response.
func (c *Client) Resync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = readFrame(c.transport, c.timeout)
}
