package plugins

import (
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
)

func TestHardwareInitAndStatus(t *testing.T) {
	e := newTestEnv(t, nil)
	app, _ := e.newApp(t, "hardware")

	code, res := call(t, app, "POST", "/api/hardware/init", nil)
	if code != 200 || !res.Success {
		t.Fatalf("init = %d %+v", code, res)
	}
	var init struct {
		Version ChipVersion `json:"version"`
	}
	decodeData(t, res, &init)
	if init.Version != (ChipVersion{Version: 7, Revision: 1, Mask: 1}) {
		t.Errorf("version = %+v", init.Version)
	}

	code, res = call(t, app, "GET", "/api/hardware/status", nil)
	if code != 200 {
		t.Fatalf("status = %d %+v", code, res)
	}
	var status struct {
		Channel string  `json:"channel"`
		SXR     float64 `json:"sxr_freq"`
		CGEN    float64 `json:"cgen_freq"`
	}
	decodeData(t, res, &status)
	if status.Channel != lms7.ChannelA.String() || status.SXR != testSXR || status.CGEN != testCGEN {
		t.Errorf("status = %+v", status)
	}
	if e.opens != 2 {
		t.Errorf("device opened %d times, want once per request", e.opens)
	}
}

func TestHardwareRegisterAccess(t *testing.T) {
	e := newTestEnv(t, nil)
	app, _ := e.newApp(t, "hardware")

	code, res := call(t, app, "POST", "/api/hardware/register/0x0203", map[string]int{"value": 0x0123})
	if code != 200 {
		t.Fatalf("write = %d %+v", code, res)
	}
	if got := e.sim.Register(lms7.ChannelA, 0x0203); got != 0x0123 {
		t.Errorf("0x0203 = 0x%04X, want 0x0123", got)
	}

	code, res = call(t, app, "GET", "/api/hardware/register/515", nil)
	if code != 200 {
		t.Fatalf("read = %d %+v", code, res)
	}
	var reg struct {
		Address string         `json:"address"`
		Value   string         `json:"value"`
		Fields  map[string]int `json:"fields"`
	}
	decodeData(t, res, &reg)
	if reg.Address != "0x0203" || reg.Value != "0x0123" {
		t.Errorf("register = %+v", reg)
	}
	if len(reg.Fields) == 0 {
		t.Error("no decoded fields for 0x0203")
	}

	code, _ = call(t, app, "GET", "/api/hardware/register/0x8000", nil)
	if code != 400 {
		t.Errorf("address above 15 bits = %d, want 400", code)
	}
	code, _ = call(t, app, "GET", "/api/hardware/register/nope", nil)
	if code != 400 {
		t.Errorf("bad address = %d, want 400", code)
	}
}

func TestHardwareBurstAndDump(t *testing.T) {
	e := newTestEnv(t, nil)
	app, _ := e.newApp(t, "hardware")

	body := map[string]interface{}{
		"registers": []map[string]int{
			{"address": 0x0208, "value": 0x0001},
			{"address": 0x0209, "value": 0x0002},
		},
	}
	if code, res := call(t, app, "POST", "/api/hardware/registers/burst", body); code != 200 {
		t.Fatalf("burst = %d %+v", code, res)
	}
	if e.sim.Register(lms7.ChannelA, 0x0208) != 1 || e.sim.Register(lms7.ChannelA, 0x0209) != 2 {
		t.Error("burst values not written")
	}
	if code, _ := call(t, app, "POST", "/api/hardware/registers/burst", map[string]interface{}{}); code != 400 {
		t.Errorf("empty burst = %d, want 400", code)
	}

	e.sim.ResetCounters()
	code, res := call(t, app, "GET", "/api/hardware/registers", nil)
	if code != 200 {
		t.Fatalf("dump = %d %+v", code, res)
	}
	var dump struct {
		Count int `json:"count"`
	}
	decodeData(t, res, &dump)
	if dump.Count != len(KnownRegisters()) {
		t.Errorf("dump count = %d, want %d", dump.Count, len(KnownRegisters()))
	}
	if e.sim.Reads() != dump.Count {
		t.Errorf("dump made %d reads for %d registers", e.sim.Reads(), dump.Count)
	}
}

func TestHardwareFields(t *testing.T) {
	e := newTestEnv(t, nil)
	app, _ := e.newApp(t, "hardware")

	code, res := call(t, app, "POST", "/api/hardware/field/DCCORRI_TXTSP", map[string]int{"value": -20})
	if code != 200 {
		t.Fatalf("field write = %d %+v", code, res)
	}
	if got := e.sim.Field(lms7.ChannelA, lms7.DCCORRI_TXTSP); got != -20 {
		t.Errorf("DCCORRI_TXTSP = %d, want -20", got)
	}

	code, res = call(t, app, "GET", "/api/hardware/field/DCCORRI_TXTSP", nil)
	if code != 200 {
		t.Fatalf("field read = %d %+v", code, res)
	}
	var field struct {
		Value int `json:"value"`
		Min   int `json:"min"`
	}
	decodeData(t, res, &field)
	if field.Value != -20 || field.Min != lms7.DCCORRI_TXTSP.Min() {
		t.Errorf("field = %+v", field)
	}

	if code, _ := call(t, app, "POST", "/api/hardware/field/DCCORRI_TXTSP", map[string]int{"value": 5000}); code != 400 {
		t.Errorf("out of range field value = %d, want 400", code)
	}
	if code, _ := call(t, app, "GET", "/api/hardware/field/NOPE", nil); code != 404 {
		t.Errorf("unknown field = %d, want 404", code)
	}

	code, res = call(t, app, "GET", "/api/hardware/fields", nil)
	var list struct {
		Count int `json:"count"`
	}
	decodeData(t, res, &list)
	if code != 200 || list.Count != len(lms7.Params()) {
		t.Errorf("fields = %d, count %d", code, list.Count)
	}
}

func TestHardwareChannelAndDefaults(t *testing.T) {
	e := newTestEnv(t, nil)
	app, _ := e.newApp(t, "hardware")

	if code, res := call(t, app, "POST", "/api/hardware/channel", map[string]string{"channel": "b"}); code != 200 {
		t.Fatalf("set channel = %d %+v", code, res)
	}
	if got := e.sim.Field(lms7.ChannelA, lms7.MAC); got != int(lms7.ChannelB) {
		t.Errorf("MAC = %d, want %d", got, lms7.ChannelB)
	}
	if code, _ := call(t, app, "POST", "/api/hardware/channel", map[string]string{"channel": "C"}); code != 400 {
		t.Errorf("channel C = %d, want 400", code)
	}

	e.sim.SetField(lms7.ChannelB, lms7.GCORRI_TXTSP, 1000)
	if code, res := call(t, app, "POST", "/api/hardware/defaults/txtsp", nil); code != 200 {
		t.Fatalf("defaults = %d %+v", code, res)
	}
	if got := e.sim.Field(lms7.ChannelB, lms7.GCORRI_TXTSP); got != 2047 {
		t.Errorf("GCORRI_TXTSP after defaults = %d, want 2047", got)
	}
	if code, _ := call(t, app, "POST", "/api/hardware/defaults/nothing", nil); code != 404 {
		t.Errorf("unknown block = %d, want 404", code)
	}
}

func TestHardwareNCOAndSwitch(t *testing.T) {
	e := newTestEnv(t, nil)
	app, _ := e.newApp(t, "hardware")

	body := map[string]interface{}{"tx": true, "index": 0, "hz": 250e3}
	if code, res := call(t, app, "POST", "/api/hardware/nco", body); code != 200 {
		t.Fatalf("nco = %d %+v", code, res)
	}

	if code, _ := call(t, app, "POST", "/api/hardware/txrx-switch", map[string]bool{"tx": true}); code != 200 {
		t.Fatalf("switch = %d", code)
	}
	code, res := call(t, app, "GET", "/api/hardware/txrx-switch", nil)
	var sw struct {
		Mode string `json:"mode"`
	}
	decodeData(t, res, &sw)
	if code != 200 || sw.Mode != "TX" {
		t.Errorf("switch = %d %+v", code, sw)
	}

	if code, _ := call(t, app, "POST", "/api/hardware/reset", nil); code != 200 || e.resets != 1 {
		t.Errorf("reset = %d, resets %d", code, e.resets)
	}
}

func TestHardwareRefusedWhileCalibrating(t *testing.T) {
	e := newTestEnv(t, nil)
	app, _ := e.newApp(t, "hardware")

	var code int
	var res apiResult
	dev, _ := e.Open()
	cal := calib.New(dev.Chip(), dev.Synth(),
		calib.WithLogger(discardLogger()),
		calib.WithCache(e.store),
		calib.WithGuard(e.Guard),
		calib.WithObserver(func(ev calib.Event) {
			if ev.Stage == calib.StageDone || ev.Stage == calib.StageFailed {
				code, res = call(t, app, "GET", "/api/hardware/register/0x0020", nil)
			}
		}))
	opens := e.opens
	if err := cal.StoreDigitalCorrections(true); err != nil {
		t.Fatalf("StoreDigitalCorrections: %v", err)
	}
	if code != 409 || res.Status != calib.StatusBusy.String() {
		t.Errorf("register read during calibration = %d %+v, want 409 busy", code, res)
	}
	if e.opens != opens {
		t.Error("device opened while the chip was busy")
	}
}

func TestCalibrationRefusedDuringRegisterAccess(t *testing.T) {
	e := newTestEnv(t, nil)
	var cp *CalibrationPlugin
	var calErr, runErr error
	open := e.Open
	e.Open = func() (Device, error) {
		dev, err := open()
		if err != nil {
			return nil, err
		}
		cal := calib.New(dev.Chip(), dev.Synth(),
			calib.WithLogger(discardLogger()),
			calib.WithCache(e.store),
			calib.WithGuard(e.Guard))
		calErr = cal.StoreDigitalCorrections(true)
		_, runErr = cp.start("store corrections", func(c *calib.Calibrator) error {
			return c.StoreDigitalCorrections(true)
		})
		return dev, nil
	}
	app, loaded := e.newApp(t, "hardware", "calibration")
	cp = loaded["calibration"].(*CalibrationPlugin)

	code, res := call(t, app, "POST", "/api/hardware/register/0x0203", map[string]int{"value": 0x0123})
	if code != 200 {
		t.Fatalf("register write = %d %+v", code, res)
	}
	if !errors.Is(calErr, calib.ErrBusy) {
		t.Errorf("calibration during register write = %v, want busy", calErr)
	}
	if !errors.Is(runErr, calib.ErrBusy) {
		t.Errorf("run started during register write = %v, want busy", runErr)
	}
	cp.Wait()
	if e.store.Len() != 0 {
		t.Errorf("cache holds %d entries, want none", e.store.Len())
	}
	if e.Guard.Busy() {
		t.Error("guard still held after the register write")
	}
}

func TestRegisterAccessRefusedDuringRun(t *testing.T) {
	e := newTestEnv(t, nil)
	var app *fiber.App
	var code int
	var res apiResult
	open := e.Open
	e.Open = func() (Device, error) {
		code, res = call(t, app, "POST", "/api/hardware/register/0x0203", map[string]int{"value": 0x0123})
		return open()
	}
	app, loaded := e.newApp(t, "hardware", "calibration")
	cp := loaded["calibration"].(*CalibrationPlugin)

	if _, err := cp.start("store corrections", func(c *calib.Calibrator) error {
		return c.StoreDigitalCorrections(true)
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cp.Wait()

	if code != 409 || res.Status != calib.StatusBusy.String() {
		t.Errorf("register write during run = %d %+v, want 409 busy", code, res)
	}
	if got := e.sim.Register(lms7.ChannelA, 0x0203); got == 0x0123 {
		t.Error("register written while the run owned the chip")
	}
	if e.Guard.Busy() {
		t.Error("guard still held after the run")
	}
}
