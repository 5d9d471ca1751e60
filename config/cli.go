package config

import (
	"os"
	"strings"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/cockroachdb/errors"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// FlagOrEnv returns the flag value if it is set, else the environment
// variable, else defaultValue.
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// ConfigFile returns the --config flag or MIDWAY_CONFIG.
func ConfigFile(cmd *cobra.Command) string {
	return FlagOrEnv(cmd, "config", EnvPrefix+"_CONFIG", "")
}

// LogLevel reads --log-level, then MIDWAY_LOG_LEVEL, defaulting to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	return logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.LevelEnv, "info"), logger.LevelInfo)
}

// Log formats accepted by --log-format.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// LogFormat reads --log-format, then MIDWAY_LOG_FORMAT. Without either it
// is console on a terminal and json otherwise, so output collected from a
// service or a pipe stays machine readable.
func LogFormat(cmd *cobra.Command) (string, error) {
	format := strings.ToLower(FlagOrEnv(cmd, "log-format", EnvPrefix+"_LOG_FORMAT", ""))
	switch format {
	case LogFormatConsole, LogFormatJSON:
		return format, nil
	case "":
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			return LogFormatConsole, nil
		}
		return LogFormatJSON, nil
	}
	return "", errors.Newf("config: unknown log format %q", format)
}

// NewLogger returns a logger in the format chosen by LogFormat at the level
// chosen by LogLevel.
func NewLogger(cmd *cobra.Command) (logger.Logger, error) {
	format, err := LogFormat(cmd)
	if err != nil {
		return nil, err
	}
	if format == LogFormatJSON {
		return logger.NewJSONLoggerWithWriter(os.Stderr, LogLevel(cmd)), nil
	}
	return logger.NewConsoleLogger(LogLevel(cmd)), nil
}

// FromCommand loads the configuration using the command's --config file and
// its flags.
func FromCommand(cmd *cobra.Command) (*Config, error) {
	return Load(ConfigFile(cmd), cmd.Flags())
}
