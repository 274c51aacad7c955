package plugins

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/lms7cal/cache"
)

// CachePlugin exposes the calibration result cache
type CachePlugin struct {
	store   CacheStore
	boardID uint32
	logger  *slog.Logger
}

// NewCachePlugin creates a new cache plugin instance
func NewCachePlugin(env *Env) (*CachePlugin, error) {
	if env.Cache == nil {
		return nil, fmt.Errorf("cache plugin needs a store")
	}
	return &CachePlugin{
		store:   env.Cache,
		boardID: env.Hardware.BoardID,
		logger:  env.Logger,
	}, nil
}

// Name returns the plugin identifier
func (p *CachePlugin) Name() string {
	return "cache"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *CachePlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/cache")

	api.Get("/", p.handleSnapshot)
	api.Delete("/", p.handleClear)
	api.Get("/dciq", p.handleLookupDCIQ)

	p.logger.Info("Cache plugin routes registered")
}

// Shutdown performs cleanup
func (p *CachePlugin) Shutdown() error {
	return nil
}

func (p *CachePlugin) handleSnapshot(c *fiber.Ctx) error {
	return SendSuccess(c, map[string]interface{}{
		"entries": p.store.Snapshot(),
		"count":   p.store.Len(),
	}, "")
}

func (p *CachePlugin) handleClear(c *fiber.Ctx) error {
	count := p.store.Len()
	if err := p.store.Clear(); err != nil {
		p.logger.Error("Failed to clear cache", "error", err)
		return SendError(c, 500, err)
	}
	p.logger.Info("Calibration cache cleared", "entries", count)
	return SendSuccess(c, map[string]interface{}{"removed": count}, "Cache cleared")
}

// handleLookupDCIQ answers ?freq=&channel=&band=&tx= with the exact entry or
// an interpolated one
func (p *CachePlugin) handleLookupDCIQ(c *fiber.Ctx) error {
	freq := c.QueryFloat("freq", 0)
	if freq <= 0 {
		return SendErrorMessage(c, 400, "freq is required")
	}
	key := cache.DCIQKey{
		BoardID: p.boardID,
		FreqHz:  freq,
		Channel: c.QueryInt("channel", 0),
		Tx:      c.QueryBool("tx", false),
		Band:    c.QueryInt("band", 0),
	}

	value, err := p.store.LookupDCIQ(key)
	exact := err == nil
	if errors.Is(err, cache.ErrMiss) {
		value, err = p.store.InterpolateDCIQ(key)
	}
	if errors.Is(err, cache.ErrMiss) {
		return SendErrorMessage(c, 404, "No calibration stored for this key")
	}
	if err != nil {
		return SendError(c, 500, err)
	}

	return SendSuccess(c, map[string]interface{}{
		"key":   key,
		"value": value,
		"exact": exact,
	}, "")
}

func init() {
	Register("cache", func(env *Env) (Plugin, error) {
		return NewCachePlugin(env)
	})
}
