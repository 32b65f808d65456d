package axpert

import (
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/serial"
)

// SerialConfig holds the settings for the RS232 port variant. The inverter
// speaks the identical protocol on its serial port as on USB HID.
type SerialConfig struct {
	Device   string
	BaudRate int
	Timeout  time.Duration
}

// SerialTransport drives the inverter over RS232. Reads return after the
// port's configured timeout with whatever bytes arrived, which the frame
// reader treats as one poll iteration.
type SerialTransport struct {
	port serial.Port
}

// OpenSerial opens the RS232 port with the protocol's fixed 8N1 framing.
// The documented factory baud rate is 2400.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 2400
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = readPollInterval
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("axpert: open serial port %s: %w", cfg.Device, err)
	}
	return &SerialTransport{port: port}, nil
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialTransport) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	// A per-read timeout just means no data yet; the frame reader owns the
	// overall deadline.
	if err != nil && (errors.Is(err, serial.ErrTimeout) || isTimeoutErr(err)) {
		return n, nil
	}
	return n, err
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}
