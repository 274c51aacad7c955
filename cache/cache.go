// Package cache stores calibration results keyed by board, frequency and
// channel so repeated calibrations can be replayed without measurements.
package cache

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrMiss is returned when no entry matches a key
var ErrMiss = errors.New("cache miss")

// DCIQKey identifies a DC/IQ correction result
type DCIQKey struct {
	BoardID uint32  `yaml:"board_id" json:"board_id"`
	FreqHz  float64 `yaml:"freq_hz" json:"freq_hz"`
	Channel int     `yaml:"channel" json:"channel"`
	Tx      bool    `yaml:"tx" json:"tx"`
	Band    int     `yaml:"band" json:"band"`
}

// DCIQ holds DC offset, gain and phase correction values
type DCIQ struct {
	DCI   int `yaml:"dc_i" json:"dc_i"`
	DCQ   int `yaml:"dc_q" json:"dc_q"`
	GainI int `yaml:"gain_i" json:"gain_i"`
	GainQ int `yaml:"gain_q" json:"gain_q"`
	Phase int `yaml:"phase" json:"phase"`
}

// FilterKey identifies an analog filter tuning result
type FilterKey struct {
	BoardID uint32  `yaml:"board_id" json:"board_id"`
	FreqHz  float64 `yaml:"freq_hz" json:"freq_hz"`
	Channel int     `yaml:"channel" json:"channel"`
	Tx      bool    `yaml:"tx" json:"tx"`
	Filter  int     `yaml:"filter" json:"filter"`
}

// FilterRC holds the tuned resistor and capacitor codes of a filter
type FilterRC struct {
	RCal int `yaml:"rcal" json:"rcal"`
	CCal int `yaml:"ccal" json:"ccal"`
	CFB  int `yaml:"cfb,omitempty" json:"cfb,omitempty"`
}

// Store is the result cache used by calibration procedures
type Store interface {
	LookupDCIQ(key DCIQKey) (DCIQ, error)
	InsertDCIQ(key DCIQKey, value DCIQ) error
	LookupFilterRC(key FilterKey) (FilterRC, error)
	InsertFilterRC(key FilterKey, value FilterRC) error
}

// Interpolator estimates DC/IQ corrections between stored frequencies
type Interpolator interface {
	InterpolateDCIQ(key DCIQKey) (DCIQ, error)
}

// DCIQEntry is one stored DC/IQ result
type DCIQEntry struct {
	Key   DCIQKey `yaml:"key" json:"key"`
	Value DCIQ    `yaml:"value" json:"value"`
}

// FilterEntry is one stored filter result
type FilterEntry struct {
	Key   FilterKey `yaml:"key" json:"key"`
	Value FilterRC  `yaml:"value" json:"value"`
}

// Snapshot lists every entry of a store
type Snapshot struct {
	DCIQ    []DCIQEntry   `yaml:"dc_iq" json:"dc_iq"`
	Filters []FilterEntry `yaml:"filters" json:"filters"`
}

// Memory is an in-process Store safe for concurrent use
type Memory struct {
	mu      sync.RWMutex
	dciq    map[DCIQKey]DCIQ
	filters map[FilterKey]FilterRC
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		dciq:    make(map[DCIQKey]DCIQ),
		filters: make(map[FilterKey]FilterRC),
	}
}

// LookupDCIQ returns the exact match for key
func (m *Memory) LookupDCIQ(key DCIQKey) (DCIQ, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.dciq[key]
	if !ok {
		return DCIQ{}, ErrMiss
	}
	return v, nil
}

// InsertDCIQ stores or replaces a DC/IQ result
func (m *Memory) InsertDCIQ(key DCIQKey, value DCIQ) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dciq[key] = value
	return nil
}

// LookupFilterRC returns the exact match for key
func (m *Memory) LookupFilterRC(key FilterKey) (FilterRC, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.filters[key]
	if !ok {
		return FilterRC{}, ErrMiss
	}
	return v, nil
}

// InsertFilterRC stores or replaces a filter result
func (m *Memory) InsertFilterRC(key FilterKey, value FilterRC) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[key] = value
	return nil
}

// InterpolateDCIQ returns an exact match when one exists, otherwise a linear
// interpolation between the nearest stored frequencies below and above the
// key. With only one neighbour its value is used as-is.
func (m *Memory) InterpolateDCIQ(key DCIQKey) (DCIQ, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.dciq[key]; ok {
		return v, nil
	}

	var lower, upper *DCIQEntry
	for k, v := range m.dciq {
		if k.BoardID != key.BoardID || k.Channel != key.Channel || k.Tx != key.Tx || k.Band != key.Band {
			continue
		}
		entry := DCIQEntry{Key: k, Value: v}
		if k.FreqHz < key.FreqHz && (lower == nil || k.FreqHz > lower.Key.FreqHz) {
			lower = &entry
		}
		if k.FreqHz > key.FreqHz && (upper == nil || k.FreqHz < upper.Key.FreqHz) {
			upper = &entry
		}
	}

	switch {
	case lower == nil && upper == nil:
		return DCIQ{}, ErrMiss
	case lower == nil:
		return upper.Value, nil
	case upper == nil:
		return lower.Value, nil
	}

	ratio := (key.FreqHz - lower.Key.FreqHz) / (upper.Key.FreqHz - lower.Key.FreqHz)
	lerp := func(a, b int) int {
		return int(math.Round(float64(a) + float64(b-a)*ratio))
	}
	lo, hi := lower.Value, upper.Value
	return DCIQ{
		DCI:   lerp(lo.DCI, hi.DCI),
		DCQ:   lerp(lo.DCQ, hi.DCQ),
		GainI: lerp(lo.GainI, hi.GainI),
		GainQ: lerp(lo.GainQ, hi.GainQ),
		Phase: lerp(lo.Phase, hi.Phase),
	}, nil
}

// Snapshot returns every entry ordered by channel, direction and frequency
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		DCIQ:    make([]DCIQEntry, 0, len(m.dciq)),
		Filters: make([]FilterEntry, 0, len(m.filters)),
	}
	for k, v := range m.dciq {
		s.DCIQ = append(s.DCIQ, DCIQEntry{Key: k, Value: v})
	}
	for k, v := range m.filters {
		s.Filters = append(s.Filters, FilterEntry{Key: k, Value: v})
	}
	sort.Slice(s.DCIQ, func(i, j int) bool {
		a, b := s.DCIQ[i].Key, s.DCIQ[j].Key
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Tx != b.Tx {
			return !a.Tx
		}
		return a.FreqHz < b.FreqHz
	})
	sort.Slice(s.Filters, func(i, j int) bool {
		a, b := s.Filters[i].Key, s.Filters[j].Key
		if a.Filter != b.Filter {
			return a.Filter < b.Filter
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.FreqHz < b.FreqHz
	})
	return s
}

// Load merges entries into the store
func (m *Memory) Load(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range s.DCIQ {
		m.dciq[e.Key] = e.Value
	}
	for _, e := range s.Filters {
		m.filters[e.Key] = e.Value
	}
}

// Clear removes every entry
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dciq = make(map[DCIQKey]DCIQ)
	m.filters = make(map[FilterKey]FilterRC)
	return nil
}

// Len returns the number of stored entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dciq) + len(m.filters)
}
