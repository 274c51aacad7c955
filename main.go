package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/linht/lms7cal/cache"
	"github.com/linht/lms7cal/plugins"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`
	Auth struct {
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Hardware plugins.HardwareConfig `yaml:"hardware"`
	Cache    struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`
	Plugins []string `yaml:"plugins"`
}

var (
	config     Config
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "lms7cal",
	Short:         "LMS7002M calibration service and tools",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "passwd" {
			setupLogging(logLevel)
			return nil
		}
		if err := loadConfig(configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel == "" {
			logLevel = config.Log.Level
		}
		setupLogging(logLevel)
		slog.Debug("Configuration loaded", "path", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(exitCode(err))
	}
}

func loadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	config = Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}
	applyDefaults(&config)
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if len(cfg.Plugins) == 0 {
		cfg.Plugins = []string{"hardware", "calibration", "cache"}
	}
	cfg.Hardware.SetDefaults()
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// setupLogging installs the structured text logger on stderr so command
// output on stdout stays parseable
func setupLogging(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
}

// openCache returns the YAML-backed cache, or an in-memory one when no path is set
func openCache(path string) (plugins.CacheStore, error) {
	if path == "" {
		slog.Warn("No cache path configured, calibration results are not persisted")
		return cache.NewMemory(), nil
	}
	store, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("Calibration cache loaded", "path", path, "entries", store.Len())
	return store, nil
}

// openDevice opens the board described by the loaded config
func openDevice() (plugins.Device, error) {
	dev, err := plugins.NewLMS7Controller(config.Hardware, slog.Default())
	if err != nil {
		return nil, err
	}
	return dev, nil
}
