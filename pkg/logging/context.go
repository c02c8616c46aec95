package logging

import (
	"log/slog"

	"storemy/pkg/primitives"
)

// WithTx creates a logger with transaction context.
// Use this to automatically include transaction ID in all logs.
//
// Example:
//
//	log := logging.WithTx(txID)
//	log.Info("starting operation")
func WithTx(txID primitives.TxnID) *slog.Logger {
	return GetLogger().With("tx_id", txID)
}

// WithFrame creates a logger with buffer-frame context.
//
// Example:
//
//	log := logging.WithFrame(fid)
//	log.Debug("victim selected")
func WithFrame(fid primitives.FrameID) *slog.Logger {
	return GetLogger().With("frame_id", fid)
}

// WithPage creates a logger with page context.
// Useful for buffer pool and B+tree operations.
//
// Example:
//
//	log := logging.WithPage(pageID)
//	log.Debug("page pinned", "dirty", isDirty)
func WithPage(pageID primitives.PageID) *slog.Logger {
	return GetLogger().With("page_id", pageID)
}

// WithLock creates a logger with lock context.
// Useful for lock manager operations.
//
// Example:
//
//	log := logging.WithLock(txID, rid)
//	log.Info("lock acquired", "lock_type", "exclusive")
func WithLock(txID primitives.TxnID, rid primitives.RID) *slog.Logger {
	return GetLogger().With("tx_id", txID, "resource", rid.String())
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("buffer_pool")
//	log.Info("component initialized")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("operation failed", "operation", "insert")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
