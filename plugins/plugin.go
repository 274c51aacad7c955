package plugins

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/lms7cal/cache"
	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
)

// Plugin interface that all plugins must implement
type Plugin interface {
	// Name returns the plugin identifier
	Name() string

	// RegisterRoutes adds the plugin's HTTP routes to the app
	RegisterRoutes(app *fiber.App)

	// Shutdown performs cleanup when the plugin is stopped
	Shutdown() error
}

// Device is an opened transceiver. Plugins open one per operation and close it
// when done, so no bus handle outlives a request or a calibration run.
type Device interface {
	Chip() *lms7.Chip
	Synth() calib.Synthesizer
	Reset() error
	SetTxRx(tx bool) error
	TxRx() (bool, error)
	Info() map[string]interface{}
	Close() error
}

// DeviceOpener opens the transceiver
type DeviceOpener func() (Device, error)

// CacheStore is the calibration cache shared by the service
type CacheStore interface {
	cache.Store
	cache.Interpolator
	Snapshot() cache.Snapshot
	Len() int
	Clear() error
}

// Env carries what plugins share
type Env struct {
	Hardware HardwareConfig
	Open     DeviceOpener
	Cache    CacheStore
	Guard    *calib.Guard
	Logger   *slog.Logger
}

// PluginFactory creates a new plugin instance
type PluginFactory func(env *Env) (Plugin, error)

var registry = make(map[string]PluginFactory)

// Register adds a plugin factory to the registry
func Register(name string, factory PluginFactory) {
	registry[name] = factory
}

// Get retrieves a plugin factory by name
func Get(name string) (PluginFactory, bool) {
	factory, exists := registry[name]
	return factory, exists
}
