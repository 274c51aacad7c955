package plugins

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/linht/lms7cal/lms7"
)

const (
	// Each LMS7002M access is one 32-bit frame: write bit, 15-bit address, 16-bit data
	frameBytes = 4
	writeBit   = 0x8000

	// spidev's default buffer is 4096 bytes
	maxFramesPerTx = 1024
)

// SPIDevice is the LMS7002M register transport over periph.io SPI
type SPIDevice struct {
	mu     sync.Mutex
	conn   spi.Conn
	port   spi.PortCloser
	device string
	speed  physic.Frequency
}

var _ lms7.Transport = (*SPIDevice)(nil)

// NewSPIDevice opens and initializes an SPI device using periph.io
func NewSPIDevice(device string, speed uint32) (*SPIDevice, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", device, err)
	}
	return newSPIDevice(port, device, speed)
}

func newSPIDevice(port spi.PortCloser, device string, speed uint32) (*SPIDevice, error) {
	// LMS7002M samples on the rising edge with the clock idle low
	freq := physic.Frequency(speed) * physic.Hertz
	conn, err := port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to SPI device: %w", err)
	}

	return &SPIDevice{
		conn:   conn,
		port:   port,
		device: device,
		speed:  freq,
	}, nil
}

// Close closes the SPI device
func (s *SPIDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.conn = nil
	return err
}

// transfer performs one full-duplex transaction with chip select held low
func (s *SPIDevice) transfer(tx []byte, rx []byte) error {
	if s.conn == nil {
		return fmt.Errorf("SPI device not open")
	}
	if err := s.conn.Tx(tx, rx); err != nil {
		return fmt.Errorf("SPI transfer failed: %w", err)
	}
	return nil
}

func putFrame(buf []byte, addr, data uint16) {
	buf[0] = byte(addr >> 8)
	buf[1] = byte(addr)
	buf[2] = byte(data >> 8)
	buf[3] = byte(data)
}

// ReadRegister implements lms7.Transport
func (s *SPIDevice) ReadRegister(addr uint16) (uint16, error) {
	values, err := s.ReadBatch([]uint16{addr})
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// WriteRegister implements lms7.Transport
func (s *SPIDevice) WriteRegister(addr, value uint16) error {
	return s.WriteBatch([]uint16{addr}, []uint16{value})
}

// ReadBatch clocks all read frames in one transaction per spidev buffer
func (s *SPIDevice) ReadBatch(addrs []uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]uint16, 0, len(addrs))
	for start := 0; start < len(addrs); start += maxFramesPerTx {
		chunk := addrs[start:min(start+maxFramesPerTx, len(addrs))]
		tx := make([]byte, len(chunk)*frameBytes)
		rx := make([]byte, len(tx))
		for i, addr := range chunk {
			putFrame(tx[i*frameBytes:], addr&^writeBit, 0)
		}
		if err := s.transfer(tx, rx); err != nil {
			return nil, fmt.Errorf("failed to read register 0x%04X: %w", chunk[0], err)
		}
		for i := range chunk {
			values = append(values, uint16(rx[i*frameBytes+2])<<8|uint16(rx[i*frameBytes+3]))
		}
	}
	return values, nil
}

// WriteBatch clocks all write frames in one transaction per spidev buffer
func (s *SPIDevice) WriteBatch(addrs, values []uint16) error {
	if len(addrs) != len(values) {
		return fmt.Errorf("batch write of %d addresses with %d values", len(addrs), len(values))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for start := 0; start < len(addrs); start += maxFramesPerTx {
		end := min(start+maxFramesPerTx, len(addrs))
		tx := make([]byte, (end-start)*frameBytes)
		for i := start; i < end; i++ {
			putFrame(tx[(i-start)*frameBytes:], addrs[i]|writeBit, values[i])
		}
		if err := s.transfer(tx, make([]byte, len(tx))); err != nil {
			return fmt.Errorf("failed to write register 0x%04X: %w", addrs[start], err)
		}
	}
	return nil
}

// DeviceInfo provides information about the SPI device
func (s *SPIDevice) DeviceInfo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Sprintf("Device: %s (closed)", s.device)
	}
	return fmt.Sprintf("Device: %s, Speed: %s", s.device, s.speed)
}

// ValidateSPIDevice checks if the device can be opened
func ValidateSPIDevice(device string) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return fmt.Errorf("SPI device %s not accessible: %w", device, err)
	}
	defer port.Close()

	return nil
}
