// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/bombarena/config"
	"github.com/wfunc/bombarena/models"
)

// Store keeps the history of finished matches. Live room and match state is
// never stored.
type Store interface {
	SaveMatchResult(ctx context.Context, rec *models.MatchRecord) error
	PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error)
	Close() error
}

var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

// Open connects the store selected by cfg.Driver: "gorm", "sql", or ""
// for none (nil, nil).
func Open(cfg config.DatabaseConfig) (Store, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "":
		return nil, nil
	case "gorm":
		store, err := NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sql":
		store, err := NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
