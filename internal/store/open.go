package store

import (
	"context"
	"errors"
	"strings"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// Open initializes the configured store and returns a ready
// reminder.Store. The file driver is the default when cfg.Driver is
// empty.
func Open(ctx context.Context, cfg Config, log logx.Logger) (reminder.Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
