// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/bombarena/models"
)

// GormPostgreSQL stores match history through GORM.
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormMatchRecord{},
		&models.GormPlayerResult{},
	)
}

// SaveMatchResult writes the match and its player lines in one
// transaction. Saving the same game twice is a no-op.
func (p *GormPostgreSQL) SaveMatchResult(ctx context.Context, rec *models.MatchRecord) error {
	return p.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.WithContext(ctx).Model(&models.GormMatchRecord{}).
			Where("game_id = ?", rec.GameID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		return tx.WithContext(ctx).Create(models.NewGormMatchRecord(rec)).Error
	})
}

func (p *GormPostgreSQL) PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	stats := &models.PlayerStats{Username: username}
	err := p.db.WithContext(ctx).Raw(`
        SELECT
            COUNT(*) AS games,
            COALESCE(SUM(CASE WHEN winner THEN 1 ELSE 0 END), 0) AS wins,
            COALESCE(SUM(kills), 0) AS kills,
            COALESCE(SUM(score), 0) AS score
        FROM player_results
        WHERE username = ?`, username,
	).Scan(stats).Error
	if err != nil {
		return nil, err
	}
	if stats.Games == 0 {
		return nil, ErrRecordNotFound
	}
	stats.Username = username
	return stats, nil
}

func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *GormPostgreSQL) Transaction(fn func(tx *gorm.DB) error) error {
	return p.db.Transaction(fn)
}
