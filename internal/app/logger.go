package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/verifolio/pkg/logger"
)

// ConfigureLogging installs the server's JSON logger. An empty level means
// info; anything zap does not recognise is a configuration error.
func ConfigureLogging(level string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "":
		level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q is not a supported level", level)
	}
	return logger.Init(level)
}
