package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
	"github.com/linht/lms7cal/plugins"
)

var (
	bandwidthHz  float64
	cutoffHz     float64
	realpoleHz   float64
	extLoopback  bool
	filterName   string
	txDirection  bool
	channelName  string
	deviceOpener = openDevice
)

// exitCode maps a procedure outcome to the process exit status
func exitCode(err error) int {
	return int(calib.StatusOf(err))
}

func init() {
	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Run DC offset and IQ imbalance calibrations",
	}
	txCmd := &cobra.Command{
		Use:   "tx",
		Short: "Calibrate the transmit path of the active channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcedure(cmd, func(cal *calib.Calibrator) error { return cal.CalibrateTx(bandwidthHz, extLoopback) })
		},
	}
	rxCmd := &cobra.Command{
		Use:   "rx",
		Short: "Calibrate the receive path of the active channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcedure(cmd, func(cal *calib.Calibrator) error { return cal.CalibrateRx(bandwidthHz, extLoopback) })
		},
	}
	for _, c := range []*cobra.Command{txCmd, rxCmd} {
		c.Flags().Float64VarP(&bandwidthHz, "bandwidth", "b", 5e6, "Signal bandwidth in Hz")
		c.Flags().BoolVar(&extLoopback, "ext-loopback", false, "Use the board's external loopback")
	}
	calibrateCmd.AddCommand(txCmd, rxCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "Tune analog baseband filters",
	}
	tuneTxCmd := &cobra.Command{
		Use:   "tx",
		Short: "Tune a Tx filter: ladder, realpole or highband",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := calib.ParseTxFilter(filterName)
			if err != nil {
				return err
			}
			return runProcedure(cmd, func(cal *calib.Calibrator) error { return cal.TuneTxFilter(kind, cutoffHz) })
		},
	}
	tuneTxCmd.Flags().StringVarP(&filterName, "filter", "f", "ladder", "Filter: ladder, realpole or highband")
	tuneTxCmd.Flags().Float64Var(&cutoffHz, "cutoff", 5e6, "Cutoff frequency in Hz")

	tuneRxCmd := &cobra.Command{
		Use:   "rx",
		Short: "Tune an Rx filter: tia, lpf-low or lpf-high",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := calib.ParseRxFilter(filterName)
			if err != nil {
				return err
			}
			return runProcedure(cmd, func(cal *calib.Calibrator) error { return cal.TuneRxFilter(kind, bandwidthHz) })
		},
	}
	tuneRxCmd.Flags().StringVarP(&filterName, "filter", "f", "tia", "Filter: tia, lpf-low or lpf-high")
	tuneRxCmd.Flags().Float64VarP(&bandwidthHz, "bandwidth", "b", 5e6, "Bandwidth in Hz")

	lowbandCmd := &cobra.Command{
		Use:   "lowband",
		Short: "Tune the Tx ladder and realpole filters as one chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcedure(cmd, func(cal *calib.Calibrator) error {
				return cal.TuneTxFilterLowBandChain(bandwidthHz, realpoleHz)
			})
		},
	}
	lowbandCmd.Flags().Float64VarP(&bandwidthHz, "bandwidth", "b", 5e6, "Ladder cutoff in Hz")
	lowbandCmd.Flags().Float64Var(&realpoleHz, "realpole", 1e6, "Realpole cutoff in Hz")
	tuneCmd.AddCommand(tuneTxCmd, tuneRxCmd, lowbandCmd)

	correctionsCmd := &cobra.Command{
		Use:   "corrections",
		Short: "Store or apply cached TSP corrections",
	}
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Save the programmed corrections under the current SX frequency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcedure(cmd, func(cal *calib.Calibrator) error { return cal.StoreDigitalCorrections(txDirection) })
		},
	}
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Program cached corrections for the current SX frequency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcedure(cmd, func(cal *calib.Calibrator) error { return cal.ApplyDigitalCorrections(txDirection) })
		},
	}
	for _, c := range []*cobra.Command{storeCmd, applyCmd} {
		c.Flags().BoolVar(&txDirection, "tx", false, "Transmit corrections instead of receive")
	}
	correctionsCmd.AddCommand(storeCmd, applyCmd)

	for _, c := range []*cobra.Command{calibrateCmd, tuneCmd, correctionsCmd} {
		c.PersistentFlags().StringVar(&channelName, "channel", "", "Select channel A or B first")
	}

	regsCmd := &cobra.Command{
		Use:   "regs",
		Short: "Read and write chip registers",
	}
	regsCmd.PersistentFlags().StringVar(&channelName, "channel", "", "Select channel A, B or AB first")
	regsCmd.AddCommand(
		&cobra.Command{
			Use:   "dump",
			Short: "Print every known register",
			Args:  cobra.NoArgs,
			RunE:  runDump,
		},
		&cobra.Command{
			Use:   "get <address|FIELD>",
			Short: "Read a register or a named field",
			Args:  cobra.ExactArgs(1),
			RunE:  runGet,
		},
		&cobra.Command{
			Use:   "set <address|FIELD> <value>",
			Short: "Write a register or a named field",
			Args:  cobra.ExactArgs(2),
			RunE:  runSet,
		},
	)

	passwdCmd := &cobra.Command{
		Use:   "passwd <password>",
		Short: "Print the bcrypt hash for auth.password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}

	rootCmd.AddCommand(calibrateCmd, tuneCmd, correctionsCmd, regsCmd, passwdCmd)
}

// withDevice opens the board, selects --channel and runs fn
func withDevice(fn func(plugins.Device) error) error {
	dev, err := deviceOpener()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Warn("Failed to close device", "error", err)
		}
	}()

	if channelName != "" {
		ch, err := plugins.ParseChannel(channelName)
		if err != nil {
			return err
		}
		if err := dev.Chip().SetActiveChannel(ch); err != nil {
			return err
		}
	}
	return fn(dev)
}

// runProcedure runs one calibration, printing each stage as it is reached
func runProcedure(cmd *cobra.Command, fn func(*calib.Calibrator) error) error {
	store, err := openCache(config.Cache.Path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	err = withDevice(func(dev plugins.Device) error {
		cal := calib.New(dev.Chip(), dev.Synth(),
			calib.WithLogger(slog.Default()),
			calib.WithCache(store),
			calib.WithBoardID(config.Hardware.BoardID),
			calib.WithObserver(func(e calib.Event) {
				fmt.Fprintf(out, "%s  %-16s %s\n", e.Time.Format("15:04:05.000"), e.Procedure, e.Stage)
			}))
		return fn(cal)
	})
	fmt.Fprintf(out, "status: %s (%d)\n", calib.StatusOf(err), exitCode(err))
	return err
}

// resolveTarget parses a register address or finds a field by name
func resolveTarget(arg string) (addr uint16, field *lms7.Param, err error) {
	if p, ok := lms7.LookupParam(strings.ToUpper(arg)); ok {
		return p.Addr, &p, nil
	}
	addr, err = plugins.ParseRegisterAddr(arg)
	return addr, nil, err
}

func runDump(cmd *cobra.Command, args []string) error {
	addrs := plugins.KnownRegisters()
	return withDevice(func(dev plugins.Device) error {
		values, err := dev.Chip().ReadBatch(addrs)
		if err != nil {
			return err
		}
		for i, addr := range addrs {
			fmt.Fprintf(cmd.OutOrStdout(), "0x%04X 0x%04X\n", addr, values[i])
		}
		return nil
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	addr, field, err := resolveTarget(args[0])
	if err != nil {
		return err
	}
	return withDevice(func(dev plugins.Device) error {
		if field != nil {
			v, err := dev.Chip().ReadField(*field)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", field.Name, v)
			return nil
		}
		v, err := dev.Chip().ReadRegister(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "0x%04X = 0x%04X\n", addr, v)
		return nil
	})
}

func runSet(cmd *cobra.Command, args []string) error {
	addr, field, err := resolveTarget(args[0])
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	return withDevice(func(dev plugins.Device) error {
		if field != nil {
			if int(value) < field.Min() || int(value) > field.Max() {
				return fmt.Errorf("%s accepts %d to %d", field.Name, field.Min(), field.Max())
			}
			return dev.Chip().WriteField(*field, int(value))
		}
		if value < 0 || value > 0xFFFF {
			return fmt.Errorf("register value %d outside 16 bits", value)
		}
		return dev.Chip().WriteRegister(addr, uint16(value))
	})
}
