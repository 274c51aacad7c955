package calib

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/linht/lms7cal/lms7"
	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	// ErrStreamTimeout reports a stream read that returned no samples in time
	ErrStreamTimeout = errors.New("stream read timed out")
	// ErrShortRead reports a stream read that returned fewer samples than requested
	ErrShortRead = errors.New("short stream read")
)

// rssiFullScale is the largest value of the 18-bit on-chip estimator
const rssiFullScale = 0x3FFFF

// sampleFullScale is the amplitude of a full-scale 12-bit sample
const sampleFullScale = 2048

// StreamID identifies an open receive stream
type StreamID int

// StreamConfig describes the receive stream used for FFT measurements
type StreamConfig struct {
	Channel    lms7.Channel
	SampleRate float64
	FIFOSize   int
}

// Streamer delivers interleaved 12-bit I/Q samples stored in int16
type Streamer interface {
	OpenStream(cfg StreamConfig) (StreamID, error)
	ReadStream(id StreamID, buffers [][]int16, count int, timeout time.Duration) (int, error)
	CloseStream(id StreamID) error
}

// FFTMeter measures the magnitude of one FFT bin of a captured sample block
type FFTMeter struct {
	streamer Streamer
	cfg      StreamConfig
	n        int
	tone     float64
	timeout  time.Duration
	fft      *fourier.CmplxFFT
}

// NewFFTMeter creates a meter capturing n complex samples per reading
func NewFFTMeter(streamer Streamer, cfg StreamConfig, n int) *FFTMeter {
	return &FFTMeter{
		streamer: streamer,
		cfg:      cfg,
		n:        n,
		timeout:  time.Second,
		fft:      fourier.NewCmplxFFT(n),
	}
}

// SelectTone picks the bin closest to offsetHz
func (m *FFTMeter) SelectTone(offsetHz float64) {
	m.tone = offsetHz
}

func (m *FFTMeter) bin() int {
	best, bestDist := 0, math.Inf(1)
	for i := 0; i < m.n; i++ {
		dist := math.Abs(m.fft.Freq(i)*m.cfg.SampleRate - m.tone)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// RSSI captures a block, transforms it and scales the selected bin to the
// range of the on-chip estimator
func (m *FFTMeter) RSSI() (rssi uint32, err error) {
	id, err := m.streamer.OpenStream(m.cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to open stream: %w", err)
	}
	defer func() {
		if cerr := m.streamer.CloseStream(id); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close stream: %w", cerr))
		}
	}()

	buf := make([]int16, 2*m.n)
	got, err := m.streamer.ReadStream(id, [][]int16{buf}, m.n, m.timeout)
	if err != nil {
		return 0, fmt.Errorf("failed to read stream: %w", err)
	}
	if got == 0 {
		return 0, ErrStreamTimeout
	}
	if got < m.n {
		return 0, fmt.Errorf("%w: %d of %d samples", ErrShortRead, got, m.n)
	}

	seq := make([]complex128, m.n)
	for i := range seq {
		seq[i] = complex(float64(buf[2*i]), float64(buf[2*i+1]))
	}
	coeff := m.fft.Coefficients(nil, seq)

	mag := cmplx.Abs(coeff[m.bin()]) / float64(m.n)
	scaled := mag / sampleFullScale * rssiFullScale
	if scaled > rssiFullScale {
		scaled = rssiFullScale
	}
	return uint32(scaled), nil
}
