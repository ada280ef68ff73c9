package link

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate matches the keypad firmware.
const DefaultBaudRate = 115200

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to a keypad over a serial port.
type Serial struct {
	port     string
	baudRate int
	opts     Options

	mu        sync.RWMutex
	conn      serial.Port
	stream    *stream
	connected bool
}

// New creates a new Serial for the port.
func New(port string, baudRate int, opts Options) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	opts.ensureDefaults()

	return &Serial{
		port:     port,
		baudRate: baudRate,
		opts:     opts,
		stream:   newStream(opts, port),
	}
}

// Ports returns a list of available serial ports, with USB product details
// where the platform provides them.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			desc := d.Name
			if d.IsUSB {
				desc = fmt.Sprintf("%s (%s:%s %s)", d.Name, d.VID, d.PID, d.Product)
			}
			result = append(result, Port{Name: d.Name, Description: desc})
		}
		return result, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the port and starts streaming.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	if err := d.stream.start(port, port); err != nil {
		d.stream.log.WithError(err).Warn("failed to start streaming")
	}

	return nil
}

// Close stops streaming and closes the port. The messages channel is closed
// once the reader has finished.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.stream.stop()

	var err error
	if d.conn != nil {
		if err = d.conn.Close(); err != nil {
			err = fmt.Errorf("failed to close serial port: %w", err)
		}
		d.conn = nil
	}

	d.connected = false
	d.stream.finish()

	return err
}

// Messages returns the channel of decoded messages.
func (d *Serial) Messages() <-chan Message {
	return d.stream.messages
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}
