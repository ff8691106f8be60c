// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/wfunc/bombarena/models"
)

// PostgreSQL stores match history with hand-written SQL.
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables mirrors the schema GORM migrates, so either driver can read
// history written by the other.
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_records (
            id BIGSERIAL PRIMARY KEY,
            game_id TEXT NOT NULL UNIQUE,
            room_id TEXT NOT NULL,
            reason TEXT NOT NULL,
            duration_seconds BIGINT DEFAULT 0,
            finished_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS player_results (
            id BIGSERIAL PRIMARY KEY,
            match_id BIGINT NOT NULL REFERENCES match_records(id) ON DELETE CASCADE,
            player_id TEXT NOT NULL,
            username TEXT NOT NULL,
            rank BIGINT NOT NULL,
            score BIGINT DEFAULT 0,
            kills BIGINT DEFAULT 0,
            time_alive BIGINT DEFAULT 0,
            winner BOOLEAN DEFAULT FALSE
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_match_records_room_id ON match_records(room_id);
        CREATE INDEX IF NOT EXISTS idx_match_records_finished_at ON match_records(finished_at);
        CREATE INDEX IF NOT EXISTS idx_player_results_match_id ON player_results(match_id);
        CREATE INDEX IF NOT EXISTS idx_player_results_username ON player_results(username);
    `)
	return err
}

func (p *PostgreSQL) SaveMatchResult(ctx context.Context, rec *models.MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var matchID int64
	err = tx.QueryRowContext(ctx, `
        INSERT INTO match_records (game_id, room_id, reason, duration_seconds, finished_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (game_id) DO NOTHING
        RETURNING id`,
		rec.GameID, rec.RoomID, rec.Reason, rec.DurationSeconds, rec.FinishedAt,
	).Scan(&matchID)
	if err == sql.ErrNoRows {
		// already recorded
		return nil
	}
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO player_results (match_id, player_id, username, rank, score, kills, time_alive, winner)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, pr := range rec.Players {
		if _, err := stmt.ExecContext(ctx, matchID,
			pr.PlayerID, pr.Username, pr.Rank, pr.Score, pr.Kills, pr.TimeAlive, pr.Winner); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgreSQL) PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stats := &models.PlayerStats{Username: username}
	err := p.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN winner THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(kills), 0),
            COALESCE(SUM(score), 0)
        FROM player_results
        WHERE username = $1`, username,
	).Scan(&stats.Games, &stats.Wins, &stats.Kills, &stats.Score)
	if err != nil {
		return nil, err
	}
	if stats.Games == 0 {
		return nil, ErrRecordNotFound
	}
	return stats, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
