package plugins

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
)

// HardwarePlugin provides LMS7002M register access and board control
// Uses transient connections - opens and releases the device for each operation
type HardwarePlugin struct {
	config HardwareConfig
	open   DeviceOpener
	guard  *calib.Guard
	logger *slog.Logger
}

// HardwareConfig holds hardware configuration
type HardwareConfig struct {
	LMS7 struct {
		SPIDevice string `yaml:"spi_device" json:"spi_device"`
		SPISpeed  uint32 `yaml:"spi_speed" json:"spi_speed"`
		GPIOChip  string `yaml:"gpio_chip" json:"gpio_chip"`
		ResetPin  int    `yaml:"reset_pin" json:"reset_pin"`
		TxRxPin   int    `yaml:"tx_rx_pin" json:"tx_rx_pin"`
	} `yaml:"lms7" json:"lms7"`
	Synth   SynthConfig `yaml:"synth" json:"synth"`
	BoardID uint32      `yaml:"board_id" json:"board_id"`
}

// SetDefaults fills in unset fields
func (cfg *HardwareConfig) SetDefaults() {
	if cfg.LMS7.SPIDevice == "" {
		cfg.LMS7.SPIDevice = "/dev/spidev0.0"
	}
	if cfg.LMS7.SPISpeed == 0 {
		cfg.LMS7.SPISpeed = 1000000 // Default 1 MHz
	}
	if cfg.LMS7.GPIOChip == "" {
		cfg.LMS7.GPIOChip = "gpiochip0"
	}
	if cfg.LMS7.TxRxPin == 0 {
		cfg.LMS7.TxRxPin = 13
	}
	if cfg.Synth.CGENHz == 0 {
		cfg.Synth.CGENHz = 368.64e6
	}
}

// NewHardwarePlugin creates a new hardware plugin instance
func NewHardwarePlugin(env *Env) (*HardwarePlugin, error) {
	if env.Open == nil {
		return nil, fmt.Errorf("hardware plugin needs a device opener")
	}

	cfg := env.Hardware
	env.Logger.Info("Hardware plugin initializing",
		"spi_device", cfg.LMS7.SPIDevice,
		"spi_speed", cfg.LMS7.SPISpeed,
		"gpio_chip", cfg.LMS7.GPIOChip,
		"reset_pin", cfg.LMS7.ResetPin,
		"board_id", cfg.BoardID)

	return &HardwarePlugin{
		config: cfg,
		open:   env.Open,
		guard:  env.Guard,
		logger: env.Logger,
	}, nil
}

// Name returns the plugin identifier
func (p *HardwarePlugin) Name() string {
	return "hardware"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *HardwarePlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/hardware")

	// Device control endpoints
	api.Post("/init", p.handleInit)
	api.Post("/reset", p.handleReset)
	api.Get("/status", p.handleStatus)
	api.Get("/info", p.handleInfo)
	api.Get("/validate", p.handleValidate)

	// Register access endpoints
	api.Get("/register/:addr", p.handleReadRegister)
	api.Post("/register/:addr", p.handleWriteRegister)
	api.Get("/registers", p.handleReadAllRegisters)
	api.Post("/registers/burst", p.handleBurstWrite)

	// Field access endpoints
	api.Get("/fields", p.handleListFields)
	api.Get("/field/:name", p.handleReadField)
	api.Post("/field/:name", p.handleWriteField)

	api.Get("/channel", p.handleGetChannel)
	api.Post("/channel", p.handleSetChannel)
	api.Post("/defaults/:block", p.handleSetDefaults)
	api.Post("/nco", p.handleSetNCO)

	// TX/RX switch control
	api.Post("/txrx-switch", p.handleSetTxRxSwitch)
	api.Get("/txrx-switch", p.handleGetTxRxSwitch)

	p.logger.Info("Hardware plugin routes registered")
}

// Shutdown performs cleanup
func (p *HardwarePlugin) Shutdown() error {
	// No persistent resources to clean up
	return nil
}

// withController executes a function with a temporary device. The guard is
// held for the whole access, so calibrations and register I/O never overlap.
func (p *HardwarePlugin) withController(fn func(Device) error) error {
	if p.guard != nil {
		if !p.guard.TryAcquire() {
			return fmt.Errorf("register access: %w", calib.ErrBusy)
		}
		defer p.guard.Release()
	}

	dev, err := p.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			p.logger.Warn("Failed to close device", "error", err)
		}
	}()

	return fn(dev)
}

// Device control handlers

func (p *HardwarePlugin) handleInit(c *fiber.Ctx) error {
	var version ChipVersion
	var info map[string]interface{}

	err := p.withController(func(dev Device) error {
		var err error
		version, err = ReadChipVersion(dev.Chip())
		info = dev.Info()
		return err
	})

	if err != nil {
		p.logger.Error("Failed to initialize hardware", "error", err)
		return SendCalibrationError(c, err)
	}

	p.logger.Info("Hardware connection verified", "version", version.String())
	return SendSuccess(c, map[string]interface{}{
		"version": version,
		"info":    info,
	}, "Hardware connection verified")
}

func (p *HardwarePlugin) handleReset(c *fiber.Ctx) error {
	err := p.withController(func(dev Device) error {
		return dev.Reset()
	})

	if err != nil {
		p.logger.Error("Failed to reset hardware", "error", err)
		return SendCalibrationError(c, err)
	}

	p.logger.Info("Hardware reset successful")
	return SendSuccess(c, nil, "Hardware reset successful")
}

func (p *HardwarePlugin) handleStatus(c *fiber.Ctx) error {
	var version ChipVersion
	var channel lms7.Channel
	var sxr, sxt, cgen float64

	err := p.withController(func(dev Device) error {
		var err error
		if version, err = ReadChipVersion(dev.Chip()); err != nil {
			return err
		}
		if channel, err = dev.Chip().ActiveChannel(); err != nil {
			return err
		}
		sxr, _ = dev.Synth().FrequencySX(lms7.Rx)
		sxt, _ = dev.Synth().FrequencySX(lms7.Tx)
		cgen, _ = dev.Synth().FrequencyCGEN()
		return nil
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	return SendSuccess(c, map[string]interface{}{
		"version":   version,
		"channel":   channel.String(),
		"sxr_freq":  sxr,
		"sxt_freq":  sxt,
		"cgen_freq": cgen,
	}, "")
}

func (p *HardwarePlugin) handleInfo(c *fiber.Ctx) error {
	return SendSuccess(c, map[string]interface{}{
		"config": p.config,
		"mode":   "transient",
		"busy":   p.guard != nil && p.guard.Busy(),
	}, "")
}

func (p *HardwarePlugin) handleValidate(c *fiber.Ctx) error {
	cfg := p.config.LMS7
	result := map[string]string{"spi": "ok", "gpio_chip": "ok", "reset_pin": "ok", "tx_rx_pin": "ok"}
	if err := ValidateSPIDevice(cfg.SPIDevice); err != nil {
		result["spi"] = err.Error()
	}
	if err := CheckLineChip(cfg.GPIOChip); err != nil {
		result["gpio_chip"] = err.Error()
	}
	if err := CheckLine(cfg.GPIOChip, cfg.ResetPin); err != nil {
		result["reset_pin"] = err.Error()
	}
	if err := CheckLine(cfg.GPIOChip, cfg.TxRxPin); err != nil {
		result["tx_rx_pin"] = err.Error()
	}
	return SendSuccess(c, result, "")
}

// Register access handlers

func (p *HardwarePlugin) handleReadRegister(c *fiber.Ctx) error {
	addr, err := ParseRegisterAddr(c.Params("addr"))
	if err != nil {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	var value uint16
	err = p.withController(func(dev Device) error {
		var err error
		value, err = dev.Chip().ReadRegister(addr)
		return err
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	return SendSuccess(c, RegisterInfo(addr, value), "")
}

func (p *HardwarePlugin) handleWriteRegister(c *fiber.Ctx) error {
	addr, err := ParseRegisterAddr(c.Params("addr"))
	if err != nil {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	var req struct {
		Value uint16 `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	err = p.withController(func(dev Device) error {
		return dev.Chip().WriteRegister(addr, req.Value)
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	p.logger.Info("Register write", "address", fmt.Sprintf("0x%04X", addr), "value", fmt.Sprintf("0x%04X", req.Value))
	return SendSuccess(c, nil, "Register written successfully")
}

func (p *HardwarePlugin) handleReadAllRegisters(c *fiber.Ctx) error {
	addrs := KnownRegisters()
	var values []uint16

	err := p.withController(func(dev Device) error {
		var err error
		values, err = dev.Chip().ReadBatch(addrs)
		return err
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	regList := make([]map[string]interface{}, 0, len(addrs))
	for i, addr := range addrs {
		regList = append(regList, RegisterInfo(addr, values[i]))
	}

	return SendSuccess(c, map[string]interface{}{
		"registers": regList,
		"count":     len(regList),
	}, "")
}

func (p *HardwarePlugin) handleBurstWrite(c *fiber.Ctx) error {
	var req struct {
		Registers []struct {
			Address uint16 `json:"address"`
			Value   uint16 `json:"value"`
		} `json:"registers"`
	}

	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	if len(req.Registers) == 0 {
		return SendErrorMessage(c, 400, "No registers to write")
	}

	addrs := make([]uint16, len(req.Registers))
	values := make([]uint16, len(req.Registers))
	for i, reg := range req.Registers {
		if reg.Address > maxRegisterAddr {
			return SendErrorMessage(c, 400, fmt.Sprintf("Invalid register address 0x%04X", reg.Address))
		}
		addrs[i] = reg.Address
		values[i] = reg.Value
	}

	err := p.withController(func(dev Device) error {
		return dev.Chip().WriteBatch(addrs, values)
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	p.logger.Info("Burst write", "count", len(addrs))
	return SendSuccess(c, map[string]interface{}{"count": len(addrs)}, "Registers written successfully")
}

// Field access handlers

func (p *HardwarePlugin) handleListFields(c *fiber.Ctx) error {
	params := lms7.Params()
	fields := make([]map[string]interface{}, 0, len(params))
	for _, param := range params {
		fields = append(fields, FieldInfo(param))
	}
	return SendSuccess(c, map[string]interface{}{
		"fields": fields,
		"count":  len(fields),
	}, "")
}

func (p *HardwarePlugin) handleReadField(c *fiber.Ctx) error {
	param, ok := lms7.LookupParam(c.Params("name"))
	if !ok {
		return SendErrorMessage(c, 404, "Unknown field")
	}

	var value int
	err := p.withController(func(dev Device) error {
		var err error
		value, err = dev.Chip().ReadField(param)
		return err
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	info := FieldInfo(param)
	info["value"] = value
	return SendSuccess(c, info, "")
}

func (p *HardwarePlugin) handleWriteField(c *fiber.Ctx) error {
	param, ok := lms7.LookupParam(c.Params("name"))
	if !ok {
		return SendErrorMessage(c, 404, "Unknown field")
	}

	var req struct {
		Value int `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	if req.Value < param.Min() || req.Value > param.Max() {
		return SendErrorMessage(c, 400, fmt.Sprintf("%s accepts %d to %d", param.Name, param.Min(), param.Max()))
	}

	err := p.withController(func(dev Device) error {
		return dev.Chip().WriteField(param, req.Value)
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	p.logger.Info("Field write", "field", param.Name, "value", req.Value)
	return SendSuccess(c, nil, "Field written successfully")
}

func (p *HardwarePlugin) handleGetChannel(c *fiber.Ctx) error {
	var channel lms7.Channel
	err := p.withController(func(dev Device) error {
		var err error
		channel, err = dev.Chip().ActiveChannel()
		return err
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	return SendSuccess(c, map[string]interface{}{"channel": channel.String()}, "")
}

func (p *HardwarePlugin) handleSetChannel(c *fiber.Ctx) error {
	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	channel, err := ParseChannel(req.Channel)
	if err != nil {
		return SendError(c, 400, err)
	}

	err = p.withController(func(dev Device) error {
		return dev.Chip().SetActiveChannel(channel)
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	return SendSuccess(c, nil, fmt.Sprintf("Channel %s selected", channel))
}

func (p *HardwarePlugin) handleSetDefaults(c *fiber.Ctx) error {
	block, err := ParseBlock(c.Params("block"))
	if err != nil {
		return SendError(c, 404, err)
	}

	err = p.withController(func(dev Device) error {
		return dev.Chip().SetDefaults(block)
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	p.logger.Info("Block defaults loaded", "block", block.String())
	return SendSuccess(c, nil, fmt.Sprintf("%s defaults loaded", block))
}

func (p *HardwarePlugin) handleSetNCO(c *fiber.Ctx) error {
	var req struct {
		Tx    bool    `json:"tx"`
		Index int     `json:"index"`
		Hz    float64 `json:"hz"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	dir := lms7.Rx
	if req.Tx {
		dir = lms7.Tx
	}

	err := p.withController(func(dev Device) error {
		return dev.Synth().SetNCOFrequency(dir, req.Index, req.Hz)
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	return SendSuccess(c, nil, fmt.Sprintf("%s NCO %d set to %.0f Hz", dir, req.Index, req.Hz))
}

// TX/RX switch handlers

func (p *HardwarePlugin) handleSetTxRxSwitch(c *fiber.Ctx) error {
	var req struct {
		Tx bool `json:"tx"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	err := p.withController(func(dev Device) error {
		return dev.SetTxRx(req.Tx)
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	mode := "RX"
	if req.Tx {
		mode = "TX"
	}
	p.logger.Info("TX/RX switch set", "mode", mode)
	return SendSuccess(c, map[string]interface{}{"tx": req.Tx, "mode": mode}, "")
}

func (p *HardwarePlugin) handleGetTxRxSwitch(c *fiber.Ctx) error {
	var tx bool
	err := p.withController(func(dev Device) error {
		var err error
		tx, err = dev.TxRx()
		return err
	})

	if err != nil {
		return SendCalibrationError(c, err)
	}

	mode := "RX"
	if tx {
		mode = "TX"
	}
	return SendSuccess(c, map[string]interface{}{"tx": tx, "mode": mode}, "")
}

func init() {
	Register("hardware", func(env *Env) (Plugin, error) {
		return NewHardwarePlugin(env)
	})
}
