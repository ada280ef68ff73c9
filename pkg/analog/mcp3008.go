// Package analog provides keys.AnalogSource implementations: an MCP3008 SPI
// converter for Linux boards, a simulated keypad and a scripted source for
// tests.
package analog

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/rice5941/nakuru/pkg/keys"
)

const (
	// MCP3008Channels is the number of single ended inputs.
	MCP3008Channels = 8
	// MCP3008Resolution is the converter resolution in bits.
	MCP3008Resolution = 10
	// DefaultSPISpeed is the SPI clock used for the converter.
	DefaultSPISpeed = 1 * physic.MegaHertz
)

// Transferer is the part of spi.Conn the converter needs.
type Transferer interface {
	Tx(w, r []byte) error
}

// MCP3008 reads keys wired to the inputs of an MCP3008 ADC.
type MCP3008 struct {
	mu       sync.Mutex
	conn     Transferer
	port     spi.PortCloser
	channels []int
	tx, rx   [3]byte
}

var _ keys.AnalogSource = (*MCP3008)(nil)

// OpenMCP3008 initialises the host drivers, opens the named SPI port (empty
// for the first one available) and maps key id i to converter input
// channels[i].
func OpenMCP3008(name string, speed physic.Frequency, channels []int) (*MCP3008, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise host drivers: %w", err)
	}
	if speed == 0 {
		speed = DefaultSPISpeed
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", name, err)
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("failed to configure SPI port %q: %w", name, err), port.Close())
	}

	m, err := NewMCP3008(conn, channels)
	if err != nil {
		return nil, multierr.Combine(err, port.Close())
	}
	m.port = port
	return m, nil
}

// NewMCP3008 wraps an already configured connection.
func NewMCP3008(conn Transferer, channels []int) (*MCP3008, error) {
	for id, ch := range channels {
		if ch < 0 || ch >= MCP3008Channels {
			return nil, fmt.Errorf("key %d: channel %d out of range", id, ch)
		}
	}
	return &MCP3008{
		conn:     conn,
		channels: append([]int(nil), channels...),
	}, nil
}

// Read performs one single ended conversion for the key's channel.
func (m *MCP3008) Read(id int) (uint16, error) {
	if id < 0 || id >= len(m.channels) {
		return 0, fmt.Errorf("key %d: no channel assigned", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tx[0] = 1                               // start bit
	m.tx[1] = byte((8 + m.channels[id]) << 4) // single ended, channel select
	m.tx[2] = 0
	if err := m.conn.Tx(m.tx[:], m.rx[:]); err != nil {
		return 0, fmt.Errorf("key %d: SPI transfer: %w", id, err)
	}
	// Only the last 10 bits carry the conversion.
	return uint16(m.rx[1]&0x03)<<8 | uint16(m.rx[2]), nil
}

// Close releases the SPI port if this converter opened it.
func (m *MCP3008) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	return err
}

// Channels returns the default mapping of n keys to inputs 0..n-1.
func Channels(n int) []int {
	ch := make([]int, n)
	for i := range ch {
		ch[i] = i
	}
	return ch
}
