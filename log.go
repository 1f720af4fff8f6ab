package cursormgr

import "log/slog"

// Global logger for all cursormgr instances
var log = slog.Default()

// SetLogger configures the global logger
func SetLogger(l *slog.Logger) {
	log = l
}
