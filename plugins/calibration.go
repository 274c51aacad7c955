package plugins

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/linht/lms7cal/calib"
)

// Run states
const (
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// maxRuns bounds the finished runs kept for GET /runs
const maxRuns = 64

// Run records one calibration request
type Run struct {
	ID        string        `json:"id"`
	Procedure string        `json:"procedure"`
	State     string        `json:"state"`
	Status    string        `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	Started   time.Time     `json:"started"`
	Finished  *time.Time    `json:"finished,omitempty"`
	Events    []calib.Event `json:"events,omitempty"`
}

// Progress is one websocket message: a stage change of a run
type Progress struct {
	RunID string `json:"run_id"`
	calib.Event
}

// CalibrationPlugin runs calibration procedures in the background and
// streams their stages over a websocket
type CalibrationPlugin struct {
	open    DeviceOpener
	cache   CacheStore
	guard   *calib.Guard
	boardID uint32
	logger  *slog.Logger
	hub     *progressHub

	mu   sync.Mutex
	runs map[string]*Run
	wg   sync.WaitGroup
}

// NewCalibrationPlugin creates a new calibration plugin instance
func NewCalibrationPlugin(env *Env) (*CalibrationPlugin, error) {
	if env.Open == nil {
		return nil, fmt.Errorf("calibration plugin needs a device opener")
	}
	guard := env.Guard
	if guard == nil {
		guard = calib.NewGuard()
	}
	return &CalibrationPlugin{
		open:    env.Open,
		cache:   env.Cache,
		guard:   guard,
		boardID: env.Hardware.BoardID,
		logger:  env.Logger,
		hub:     newProgressHub(env.Logger),
		runs:    make(map[string]*Run),
	}, nil
}

// Name returns the plugin identifier
func (p *CalibrationPlugin) Name() string {
	return "calibration"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *CalibrationPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/calibration")

	api.Post("/tx", p.handleCalibrateTx)
	api.Post("/rx", p.handleCalibrateRx)
	api.Post("/filter/tx", p.handleTuneTxFilter)
	api.Post("/filter/tx-lowband", p.handleTuneTxLowBand)
	api.Post("/filter/rx", p.handleTuneRxFilter)
	api.Post("/corrections/store", p.handleStoreCorrections)
	api.Post("/corrections/apply", p.handleApplyCorrections)

	api.Get("/runs", p.handleListRuns)
	api.Get("/runs/:id", p.handleGetRun)

	p.hub.register(api)

	p.logger.Info("Calibration plugin routes registered")
}

// Shutdown waits for running procedures so every chip state is restored
func (p *CalibrationPlugin) Shutdown() error {
	p.wg.Wait()
	p.hub.close()
	return nil
}

// Wait blocks until no procedure is running
func (p *CalibrationPlugin) Wait() {
	p.wg.Wait()
}

// start launches fn on a fresh device and returns the run ID
func (p *CalibrationPlugin) start(procedure string, fn func(*calib.Calibrator) error) (*Run, error) {
	// held until execute returns; the calibrator itself runs on a private guard
	if !p.guard.TryAcquire() {
		return nil, fmt.Errorf("%s: %w", procedure, calib.ErrBusy)
	}

	run := &Run{
		ID:        uuid.New().String(),
		Procedure: procedure,
		State:     RunRunning,
		Started:   time.Now(),
		Events:    []calib.Event{},
	}
	p.mu.Lock()
	p.runs[run.ID] = run
	p.pruneLocked()
	snapshot := *run
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.execute(run.ID, fn)
		p.guard.Release()
		p.finish(run.ID, err)
	}()

	p.logger.Info("Calibration started", "id", run.ID, "procedure", procedure)
	return &snapshot, nil
}

func (p *CalibrationPlugin) execute(id string, fn func(*calib.Calibrator) error) error {
	dev, err := p.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			p.logger.Warn("Failed to close device", "error", err)
		}
	}()

	opts := []calib.Option{
		calib.WithLogger(p.logger),
		calib.WithBoardID(p.boardID),
		calib.WithObserver(func(e calib.Event) { p.record(id, e) }),
	}
	if p.cache != nil {
		opts = append(opts, calib.WithCache(p.cache))
	}
	return fn(calib.New(dev.Chip(), dev.Synth(), opts...))
}

func (p *CalibrationPlugin) record(id string, e calib.Event) {
	p.mu.Lock()
	if run, ok := p.runs[id]; ok {
		run.Events = append(run.Events, e)
	}
	p.mu.Unlock()
	p.hub.broadcast(Progress{RunID: id, Event: e})
}

func (p *CalibrationPlugin) finish(id string, err error) {
	now := time.Now()
	status := calib.StatusOf(err)

	p.mu.Lock()
	run := p.runs[id]
	run.Finished = &now
	run.Status = status.String()
	run.State = RunDone
	if err != nil {
		run.State = RunFailed
		run.Error = err.Error()
	}
	procedure := run.Procedure
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("Calibration failed", "id", id, "procedure", procedure, "status", status.String(), "error", err)
		return
	}
	p.logger.Info("Calibration finished", "id", id, "procedure", procedure)
}

// pruneLocked drops the oldest finished runs beyond maxRuns
func (p *CalibrationPlugin) pruneLocked() {
	if len(p.runs) <= maxRuns {
		return
	}
	var finished []*Run
	for _, run := range p.runs {
		if run.State != RunRunning {
			finished = append(finished, run)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].Started.Before(finished[j].Started) })
	for _, run := range finished {
		if len(p.runs) <= maxRuns {
			break
		}
		delete(p.runs, run.ID)
	}
}

// Lookup returns a copy of a run
func (p *CalibrationPlugin) Lookup(id string) (Run, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[id]
	if !ok {
		return Run{}, false
	}
	copied := *run
	copied.Events = append([]calib.Event(nil), run.Events...)
	return copied, true
}

func (p *CalibrationPlugin) respondStarted(c *fiber.Ctx, procedure string, fn func(*calib.Calibrator) error) error {
	run, err := p.start(procedure, fn)
	if err != nil {
		return SendCalibrationError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(APIResponse{
		Success: true,
		Data:    run,
		Message: fmt.Sprintf("%s started", procedure),
	})
}

// Procedure handlers

type txrxRequest struct {
	BandwidthHz    float64 `json:"bandwidth_hz"`
	UseExtLoopback bool    `json:"ext_loopback"`
}

func (p *CalibrationPlugin) handleCalibrateTx(c *fiber.Ctx) error {
	var req txrxRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	return p.respondStarted(c, "CalibrateTx", func(cal *calib.Calibrator) error {
		return cal.CalibrateTx(req.BandwidthHz, req.UseExtLoopback)
	})
}

func (p *CalibrationPlugin) handleCalibrateRx(c *fiber.Ctx) error {
	var req txrxRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	return p.respondStarted(c, "CalibrateRx", func(cal *calib.Calibrator) error {
		return cal.CalibrateRx(req.BandwidthHz, req.UseExtLoopback)
	})
}

func (p *CalibrationPlugin) handleTuneTxFilter(c *fiber.Ctx) error {
	var req struct {
		Filter   string  `json:"filter"`
		CutoffHz float64 `json:"cutoff_hz"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	kind, err := calib.ParseTxFilter(req.Filter)
	if err != nil {
		return SendError(c, 400, err)
	}
	return p.respondStarted(c, "TuneTxFilter", func(cal *calib.Calibrator) error {
		return cal.TuneTxFilter(kind, req.CutoffHz)
	})
}

func (p *CalibrationPlugin) handleTuneTxLowBand(c *fiber.Ctx) error {
	var req struct {
		BandwidthHz float64 `json:"bandwidth_hz"`
		RealpoleHz  float64 `json:"realpole_hz"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	return p.respondStarted(c, "TuneTxFilterLowBandChain", func(cal *calib.Calibrator) error {
		return cal.TuneTxFilterLowBandChain(req.BandwidthHz, req.RealpoleHz)
	})
}

func (p *CalibrationPlugin) handleTuneRxFilter(c *fiber.Ctx) error {
	var req struct {
		Filter      string  `json:"filter"`
		BandwidthHz float64 `json:"bandwidth_hz"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	kind, err := calib.ParseRxFilter(req.Filter)
	if err != nil {
		return SendError(c, 400, err)
	}
	return p.respondStarted(c, "TuneRxFilter", func(cal *calib.Calibrator) error {
		return cal.TuneRxFilter(kind, req.BandwidthHz)
	})
}

type correctionsRequest struct {
	Tx bool `json:"tx"`
}

func (p *CalibrationPlugin) handleStoreCorrections(c *fiber.Ctx) error {
	var req correctionsRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	return p.respondStarted(c, "StoreDigitalCorrections", func(cal *calib.Calibrator) error {
		return cal.StoreDigitalCorrections(req.Tx)
	})
}

func (p *CalibrationPlugin) handleApplyCorrections(c *fiber.Ctx) error {
	var req correctionsRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	return p.respondStarted(c, "ApplyDigitalCorrections", func(cal *calib.Calibrator) error {
		return cal.ApplyDigitalCorrections(req.Tx)
	})
}

// Run handlers

func (p *CalibrationPlugin) handleListRuns(c *fiber.Ctx) error {
	p.mu.Lock()
	runs := make([]Run, 0, len(p.runs))
	for _, run := range p.runs {
		copied := *run
		copied.Events = nil
		runs = append(runs, copied)
	}
	p.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].Started.After(runs[j].Started) })
	return SendSuccess(c, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"busy":  p.guard.Busy(),
	}, "")
}

func (p *CalibrationPlugin) handleGetRun(c *fiber.Ctx) error {
	run, ok := p.Lookup(c.Params("id"))
	if !ok {
		return SendErrorMessage(c, 404, "Run not found")
	}
	return SendSuccess(c, run, "")
}

func init() {
	Register("calibration", func(env *Env) (Plugin, error) {
		return NewCalibrationPlugin(env)
	})
}
