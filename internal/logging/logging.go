// Package logging configures the process-wide charm logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// ParseLevel accepts debug, info, warn/warning and error. An empty string
// means info.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return log.InfoLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Setup installs the default logger writing to stderr. verbose forces debug.
func Setup(level string, verbose bool) error {
	return SetupWriter(os.Stderr, level, verbose)
}

func SetupWriter(w io.Writer, level string, verbose bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if verbose {
		lvl = log.DebugLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: lvl == log.DebugLevel,
		Prefix:          "chatarc",
	})
	log.SetDefault(logger)
	return nil
}
