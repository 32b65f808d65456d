package axpert

import (
	"bytes"
	"fmt"
	"time"
)

// Transport is an already-open byte-oriented connection to the inverter.
// This package never opens or configures the device itself, it only drives
// an existing handle. Access to a single Transport must be serialized by
// the caller; Client does this with a mutex.
type Transport interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// readDeadliner is implemented by transports that support per-read
// deadlines (the hidraw device transport does). Transports without it fall
// back to the poll loop's overall deadline check.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

const (
	// The inverter's receive buffer only holds 8 bytes, so frames are
	// written in 8-byte chunks with a pause between transmissions.
	txChunkSize = 8

	// DefaultChunkDelay is the pause between chunk writes. 350ms is known
	// to work reliably across firmware revisions.
	DefaultChunkDelay = 350 * time.Millisecond

	// DefaultTimeout bounds a whole response read.
	DefaultTimeout = 10 * time.Second

	// maxResponseSize protects the reader against a device that never
	// terminates its frame. The longest documented response (QPIRI on
	// parallel models) stays well under this.
	maxResponseSize = 1024

	// readPollInterval is the pause between read attempts while waiting
	// for the device to drain its 8-byte transmit buffer.
	readPollInterval = 150 * time.Millisecond
)

// sendFrame writes frame to t in txChunkSize-byte chunks with delay between
// each chunk. There is no mid-frame retry: the protocol has no resume, so
// any failed or short write abandons the exchange.
func sendFrame(t Transport, frame []byte, delay time.Duration) error {
	for off := 0; off < len(frame); off += txChunkSize {
		time.Sleep(delay)
		end := off + txChunkSize
		if end > len(frame) {
			end = len(frame)
		}
		chunk := frame[off:end]
		n, err := t.Write(chunk)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		if n != len(chunk) {
			return fmt.Errorf("%w: short write (%d of %d bytes)", ErrWriteFailed, n, len(chunk))
		}
	}
	return nil
}

// readFrame accumulates bytes from t until a frame terminator is seen, the
// timeout elapses (ErrTimeout) or maxResponseSize is hit (ErrOverflow).
// The device pads its final 8-byte transmit block with NUL bytes after the
// terminator; those are returned as-is and ignored by DecodeFrame.
func readFrame(t Transport, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := t.(readDeadliner); ok {
		if err := d.SetReadDeadline(deadline); err == nil {
			defer d.SetReadDeadline(time.Time{})
		}
	}

	var response []byte
	buf := make([]byte, 256)
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		n, err := t.Read(buf)
		if n > 0 {
			response = append(response, buf[:n]...)
			if bytes.IndexByte(buf[:n], frameTerminator) >= 0 {
				return response, nil
			}
			if len(response) > maxResponseSize {
				return nil, fmt.Errorf("%w: %d bytes without terminator", ErrOverflow, len(response))
			}
		}
		if err != nil {
			if isTimeoutErr(err) {
				return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return nil, fmt.Errorf("axpert: transport read: %w", err)
		}
		if n == 0 {
			time.Sleep(readPollInterval)
		}
	}
}

func isTimeoutErr(err error) bool {
	t, ok := err.(interface{ Timeout() bool })
	return ok && t.Timeout()
}
