// Package logging provides structured logging for the stockbarcode tools.
//
// This package wraps a global zap logger with convenience functions. Commands
// stay silent unless a level is given on the command line or through the
// STOCKBARCODE_LOG_LEVEL environment variable.
//
// # Log Levels
//
//   - Debug: view transitions, websocket frames, search sequence numbers
//   - Info: scans, refresh cycles, connections
//   - Warn: rejected scans, dropped stale results, retries
//   - Error: failed refreshes, startup failures
//
// # Session Logging
//
//	logging.LogScan(subject, barcode, "accepted", nil)
//	logging.LogTransition(subject, "lineList", "productDetail", "open_product")
//	logging.LogRefresh(subject, recordID, lineID, elapsed, err)
//
// # Terminal UI
//
// The interactive session owns the terminal, so it logs to a file instead:
//
//	f, _ := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
//	logging.InitializeWithOutput(level, f)
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
