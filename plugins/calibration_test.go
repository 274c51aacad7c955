package plugins

import (
	"testing"
	"time"

	"github.com/linht/lms7cal/cache"
	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
)

// startRun posts a procedure and waits for it to finish
func startRun(t *testing.T, e *testEnv, path string, body interface{}) Run {
	t.Helper()
	app, plugins := e.newApp(t, "calibration")
	p := plugins["calibration"].(*CalibrationPlugin)

	code, res := call(t, app, "POST", path, body)
	if code != 202 || !res.Success {
		t.Fatalf("POST %s = %d %+v", path, code, res)
	}
	var started Run
	decodeData(t, res, &started)
	if started.ID == "" || started.State != RunRunning {
		t.Fatalf("started run = %+v", started)
	}
	p.Wait()

	code, res = call(t, app, "GET", "/api/calibration/runs/"+started.ID, nil)
	if code != 200 {
		t.Fatalf("GET run = %d %+v", code, res)
	}
	var run Run
	decodeData(t, res, &run)
	return run
}

func stagesOf(run Run) []calib.Stage {
	stages := make([]calib.Stage, len(run.Events))
	for i, ev := range run.Events {
		stages[i] = ev.Stage
	}
	return stages
}

func TestCalibrateTxFromCache(t *testing.T) {
	e := newTestEnv(t, nil)
	key := cache.DCIQKey{BoardID: testBoard, FreqHz: testSXT, Channel: 0, Tx: true, Band: 0}
	stored := cache.DCIQ{DCI: 5, DCQ: -6, GainI: 2000, GainQ: 2047, Phase: 12}
	if err := e.store.InsertDCIQ(key, stored); err != nil {
		t.Fatal(err)
	}

	run := startRun(t, e, "/api/calibration/tx", map[string]interface{}{"bandwidth_hz": 5e6})
	if run.State != RunDone || run.Status != calib.StatusOK.String() || run.Error != "" {
		t.Fatalf("run = %+v", run)
	}
	if run.Finished == nil || run.Finished.Before(run.Started) {
		t.Errorf("finished = %v, started = %v", run.Finished, run.Started)
	}
	stages := stagesOf(run)
	if len(stages) == 0 || stages[0] != calib.StageCacheHit || stages[len(stages)-1] != calib.StageDone {
		t.Errorf("stages = %v", stages)
	}
	if got := e.sim.Field(lms7.ChannelA, lms7.GCORRI_TXTSP); got != stored.GainI {
		t.Errorf("GCORRI_TXTSP = %d, want %d", got, stored.GainI)
	}
	if e.sim.Captures() != 0 {
		t.Errorf("cached run measured %d times", e.sim.Captures())
	}
}

func TestCalibrationOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   interface{}
		status calib.Status
	}{
		{"external loopback", "/api/calibration/tx", map[string]interface{}{"bandwidth_hz": 5e6, "ext_loopback": true}, calib.StatusUnsupported},
		{"ladder below range", "/api/calibration/filter/tx", map[string]interface{}{"filter": "ladder", "cutoff_hz": 1e6}, calib.StatusRange},
		{"lpf high below range", "/api/calibration/filter/rx", map[string]interface{}{"filter": "lpf-high", "bandwidth_hz": 5e6}, calib.StatusRange},
		{"apply without entry", "/api/calibration/corrections/apply", map[string]bool{"tx": true}, calib.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, nil)
			before := e.sim.Dump()
			run := startRun(t, e, tt.path, tt.body)
			if run.State != RunFailed || run.Status != tt.status.String() || run.Error == "" {
				t.Errorf("run = %+v, want failed with %v", run, tt.status)
			}
			after := e.sim.Dump()
			for bank := range before {
				for addr, v := range before[bank] {
					if after[bank][addr] != v {
						t.Errorf("bank %d 0x%04X changed to 0x%04X", bank, addr, after[bank][addr])
					}
				}
			}
		})
	}
}

func TestStoreThenApplyCorrections(t *testing.T) {
	e := newTestEnv(t, nil)
	e.sim.SetField(lms7.ChannelA, lms7.GCORRI_RXTSP, 1900)
	e.sim.SetField(lms7.ChannelA, lms7.IQCORR_RXTSP, -15)

	run := startRun(t, e, "/api/calibration/corrections/store", map[string]bool{"tx": false})
	if run.State != RunDone {
		t.Fatalf("store run = %+v", run)
	}
	if e.store.Len() != 1 {
		t.Fatalf("cache holds %d entries, want 1", e.store.Len())
	}

	e.sim.SetField(lms7.ChannelA, lms7.GCORRI_RXTSP, 2047)
	e.sim.SetField(lms7.ChannelA, lms7.IQCORR_RXTSP, 0)
	run = startRun(t, e, "/api/calibration/corrections/apply", map[string]bool{"tx": false})
	if run.State != RunDone {
		t.Fatalf("apply run = %+v", run)
	}
	if got := e.sim.Field(lms7.ChannelA, lms7.GCORRI_RXTSP); got != 1900 {
		t.Errorf("GCORRI_RXTSP = %d, want 1900", got)
	}
	if got := e.sim.Field(lms7.ChannelA, lms7.IQCORR_RXTSP); got != -15 {
		t.Errorf("IQCORR_RXTSP = %d, want -15", got)
	}
}

func TestCalibrationBadRequests(t *testing.T) {
	e := newTestEnv(t, nil)
	app, _ := e.newApp(t, "calibration")

	code, res := call(t, app, "POST", "/api/calibration/filter/tx", map[string]interface{}{"filter": "notch", "cutoff_hz": 5e6})
	if code != 400 || res.Success {
		t.Errorf("unknown filter = %d %+v", code, res)
	}
	if code, _ := call(t, app, "GET", "/api/calibration/runs/missing", nil); code != 404 {
		t.Errorf("missing run = %d, want 404", code)
	}
	if e.opens != 0 {
		t.Errorf("device opened %d times for rejected requests", e.opens)
	}
}

func TestCalibrationBusy(t *testing.T) {
	e := newTestEnv(t, nil)
	app, plugins := e.newApp(t, "calibration")
	p := plugins["calibration"].(*CalibrationPlugin)

	var code int
	var res apiResult
	dev, _ := e.Open()
	cal := calib.New(dev.Chip(), dev.Synth(),
		calib.WithLogger(discardLogger()),
		calib.WithCache(e.store),
		calib.WithGuard(e.Guard),
		calib.WithObserver(func(ev calib.Event) {
			if ev.Stage == calib.StageDone {
				code, res = call(t, app, "POST", "/api/calibration/rx", map[string]interface{}{"bandwidth_hz": 5e6})
			}
		}))
	if err := cal.StoreDigitalCorrections(true); err != nil {
		t.Fatalf("StoreDigitalCorrections: %v", err)
	}
	if code != 409 || res.Status != calib.StatusBusy.String() {
		t.Errorf("second calibration = %d %+v, want 409 busy", code, res)
	}
	p.Wait()

	_, res = call(t, app, "GET", "/api/calibration/runs", nil)
	var list struct {
		Count int  `json:"count"`
		Busy  bool `json:"busy"`
	}
	decodeData(t, res, &list)
	if list.Count != 0 || list.Busy {
		t.Errorf("runs = %+v, want none and idle", list)
	}
}

func TestRunsArePruned(t *testing.T) {
	e := newTestEnv(t, nil)
	p, err := NewCalibrationPlugin(e.Env)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < maxRuns+10; i++ {
		if _, err := p.start("noop", func(*calib.Calibrator) error { return nil }); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		p.Wait()
	}
	p.mu.Lock()
	n := len(p.runs)
	p.mu.Unlock()
	if n > maxRuns {
		t.Errorf("%d runs kept, want at most %d", n, maxRuns)
	}
}

func TestProgressHub(t *testing.T) {
	h := newProgressHub(discardLogger())
	fast := h.subscribe()
	slow := h.subscribe()

	for i := 0; i < clientBuffer+5; i++ {
		h.broadcast(Progress{RunID: "r", Event: calib.Event{Stage: calib.StageSearch, Time: time.Now()}})
		if i < clientBuffer {
			<-fast
		}
	}
	if len(slow) != clientBuffer {
		t.Errorf("slow client queued %d messages, want %d", len(slow), clientBuffer)
	}
	if len(fast) != 5 {
		t.Errorf("fast client queued %d messages, want 5", len(fast))
	}

	h.unsubscribe(fast)
	h.unsubscribe(fast)
	h.close()
	for range slow {
	}
	if _, ok := <-slow; ok {
		t.Error("client channel open after close")
	}
}
