package axpert

import (
	"fmt"
	"os"
	"time"
)

// HIDTransport drives the inverter through its USB HID raw device node
// (typically /dev/hidrawN, or a udev symlink like /dev/hidAxpert). The
// protocol never uses HID report structure; the node behaves as a plain
// byte stream, so a regular file handle is all that is needed.
type HIDTransport struct {
	f *os.File
}

// OpenHID opens the given hidraw device node for reading and writing.
func OpenHID(device string) (*HIDTransport, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("axpert: open hid device %s: %w", device, err)
	}
	return &HIDTransport{f: f}, nil
}

func (h *HIDTransport) Write(p []byte) (int, error) {
	return h.f.Write(p)
}

func (h *HIDTransport) Read(p []byte) (int, error) {
	return h.f.Read(p)
}

// SetReadDeadline bounds subsequent reads. hidraw nodes support poll, so
// the runtime deadline mechanism works on them.
func (h *HIDTransport) SetReadDeadline(t time.Time) error {
	return h.f.SetReadDeadline(t)
}

func (h *HIDTransport) Close() error {
	return h.f.Close()
}
