// Package logging provides structured logging with per-module log levels.
//
// Every module asks for its own logger:
//
//	logger := logging.GetLogger("rsam")
//	logger.Info("Window closed", "stream_id", id.String(), "rsam", r.RSAM)
//
// Records go to stdout (text or json) and, when journald is reachable, to the
// systemd journal under the identifier "seisnode":
//
//	journalctl -t seisnode MODULE=worker STREAM_ID=IU.ANMO.00.BHZ
//
// Levels are set globally and overridden per module:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	worker = "debug"
//	subscription = "warn"
//
// Each module logger carries its own slog.LevelVar, so SetModuleLevel takes
// effect on loggers that were already handed out.
package logging
