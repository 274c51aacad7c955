package lms7

import (
	"fmt"
	"log/slog"
)

// Transport moves 16-bit register values to and from the chip.
// Batch calls must be a single bus transaction where the bus allows it.
type Transport interface {
	ReadRegister(addr uint16) (uint16, error)
	WriteRegister(addr, value uint16) error
	ReadBatch(addrs []uint16) ([]uint16, error)
	WriteBatch(addrs, values []uint16) error
}

// Channel selects the register bank addressed by the MAC field
type Channel uint8

const (
	ChannelA  Channel = 1
	ChannelB  Channel = 2
	ChannelAB Channel = 3

	// The receive synthesizer lives in the channel A bank, the transmit one in channel B
	ChannelSXR = ChannelA
	ChannelSXT = ChannelB
)

func (ch Channel) String() string {
	switch ch {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	case ChannelAB:
		return "AB"
	}
	return fmt.Sprintf("Channel(%d)", uint8(ch))
}

// Index returns 0 for channel A and 1 for channel B
func (ch Channel) Index() int {
	if ch == ChannelB {
		return 1
	}
	return 0
}

// Direction selects the transmit or receive half of the chip
type Direction uint8

const (
	Rx Direction = iota
	Tx
)

func (d Direction) String() string {
	if d == Tx {
		return "tx"
	}
	return "rx"
}

// Option configures a Chip
type Option func(*Chip)

// WithLogger sets the logger used for register traces
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chip) {
		c.logger = logger
	}
}

// Chip provides field-level access to an LMS7002M over a Transport.
// Nothing is cached: every access is a bus round-trip, so registers changed
// by other writers on the same bus are always seen.
type Chip struct {
	transport Transport
	logger    *slog.Logger
}

// New creates a Chip on top of a transport
func New(transport Transport, opts ...Option) *Chip {
	c := &Chip{
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Shared reports whether addr is common to both channels rather than banked by MAC
func Shared(addr uint16) bool {
	return addr < sharedLimit
}

// ReadRegister reads one register
func (c *Chip) ReadRegister(addr uint16) (uint16, error) {
	value, err := c.transport.ReadRegister(addr)
	if err != nil {
		return 0, &IOError{Op: "read", Addr: addr, Err: err}
	}
	return value, nil
}

// WriteRegister writes one register
func (c *Chip) WriteRegister(addr, value uint16) error {
	if err := c.transport.WriteRegister(addr, value); err != nil {
		return &IOError{Op: "write", Addr: addr, Err: err}
	}
	return nil
}

// ReadBatch reads several registers in one transfer
func (c *Chip) ReadBatch(addrs []uint16) ([]uint16, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	values, err := c.transport.ReadBatch(addrs)
	if err != nil {
		return nil, &IOError{Op: "batch read", Addr: addrs[0], Err: err}
	}
	if len(values) != len(addrs) {
		return nil, &IOError{Op: "batch read", Addr: addrs[0],
			Err: fmt.Errorf("got %d values for %d addresses", len(values), len(addrs))}
	}
	return values, nil
}

// WriteBatch writes several registers in one transfer
func (c *Chip) WriteBatch(addrs, values []uint16) error {
	if len(addrs) != len(values) {
		return fmt.Errorf("batch write: %d addresses but %d values", len(addrs), len(values))
	}
	if len(addrs) == 0 {
		return nil
	}
	if err := c.transport.WriteBatch(addrs, values); err != nil {
		return &IOError{Op: "batch write", Addr: addrs[0], Err: err}
	}
	return nil
}

// ReadField returns the decoded value of a field
func (c *Chip) ReadField(p Param) (int, error) {
	reg, err := c.ReadRegister(p.Addr)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", p.Name, err)
	}
	return p.extract(reg), nil
}

// WriteField updates only the bits of a field, preserving the rest of the register
func (c *Chip) WriteField(p Param, value int) error {
	reg, err := c.ReadRegister(p.Addr)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p.Name, err)
	}
	if err := c.WriteRegister(p.Addr, p.insert(reg, value)); err != nil {
		return fmt.Errorf("failed to write %s: %w", p.Name, err)
	}
	c.logger.Debug("Field write", "field", p.Name, "value", value)
	return nil
}

// SetDefaults restores the factory configuration of a block
func (c *Chip) SetDefaults(b Block) error {
	values, err := Defaults(b)
	if err != nil {
		return err
	}
	addrs := make([]uint16, len(values))
	data := make([]uint16, len(values))
	for i, rv := range values {
		addrs[i] = rv.Addr
		data[i] = rv.Value
	}
	if err := c.WriteBatch(addrs, data); err != nil {
		return fmt.Errorf("failed to load %v defaults: %w", b, err)
	}
	c.logger.Debug("Block defaults loaded", "block", b.String())
	return nil
}

// SetActiveChannel selects the register bank for subsequent banked accesses
func (c *Chip) SetActiveChannel(ch Channel) error {
	if ch < ChannelA || ch > ChannelAB {
		return fmt.Errorf("invalid channel %d", ch)
	}
	return c.WriteField(MAC, int(ch))
}

// ActiveChannel reads the MAC field
func (c *Chip) ActiveChannel() (Channel, error) {
	v, err := c.ReadField(MAC)
	if err != nil {
		return 0, err
	}
	return Channel(v), nil
}
