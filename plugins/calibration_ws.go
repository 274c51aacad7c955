package plugins

import (
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// clientBuffer is the number of progress messages queued per websocket
// before new ones are dropped for that client
const clientBuffer = 64

// progressHub fans calibration progress out to websocket clients. Broadcast
// never blocks, so the calibrating goroutine is not held up by slow readers.
type progressHub struct {
	mu      sync.Mutex
	clients map[chan Progress]struct{}
	logger  *slog.Logger
}

func newProgressHub(logger *slog.Logger) *progressHub {
	return &progressHub{
		clients: make(map[chan Progress]struct{}),
		logger:  logger,
	}
}

func (h *progressHub) register(api fiber.Router) {
	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(h.handleWebSocket))
}

func (h *progressHub) subscribe() chan Progress {
	ch := make(chan Progress, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *progressHub) unsubscribe(ch chan Progress) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *progressHub) broadcast(msg Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("Progress client lagging, message dropped", "run", msg.RunID)
		}
	}
}

func (h *progressHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *progressHub) handleWebSocket(c *websocket.Conn) {
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// the reader only notices the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteJSON(msg); err != nil {
				h.logger.Debug("Progress client gone", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}
