package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SerialMover drives a robot over a serial line with `MOVE x y` commands,
// one line per command, waiting for a single reply line.
type SerialMover struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	r    *bufio.Reader
}

// OpenSerialMover opens the serial device at 9600 8N1.
func OpenSerialMover(path string) (*SerialMover, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	return NewSerialMover(port), nil
}

// NewSerialMover wraps an already opened port.
func NewSerialMover(port io.ReadWriteCloser) *SerialMover {
	return &SerialMover{port: port, r: bufio.NewReader(port)}
}

// Move sends the target position and returns the robot's reply error, if any.
// Replies starting with "ERR" are reported as errors.
func (m *SerialMover) Move(ctx context.Context, station string, x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(m.port, "MOVE %.2f %.2f\n", x, y); err != nil {
		return fmt.Errorf("move %s: %w", station, err)
	}
	reply, err := m.r.ReadString('\n')
	if err != nil && !(err == io.EOF && reply != "") {
		return fmt.Errorf("move %s: read reply: %w", station, err)
	}
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "ERR") {
		return fmt.Errorf("move %s: robot replied %q", station, reply)
	}
	return nil
}

// Close closes the port.
func (m *SerialMover) Close() error {
	return m.port.Close()
}
