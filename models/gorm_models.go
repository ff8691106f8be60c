// models/gorm_models.go
package models

import (
	"time"
)

// GormMatchRecord is the ORM row for a finished match.
type GormMatchRecord struct {
	ID              uint               `gorm:"primaryKey"`
	GameID          string             `gorm:"uniqueIndex;not null"`
	RoomID          string             `gorm:"index;not null"`
	Reason          string             `gorm:"not null"`
	DurationSeconds int                `gorm:"default:0"`
	Results         []GormPlayerResult `gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`
	FinishedAt      time.Time          `gorm:"index"`
	CreatedAt       time.Time
}

func (GormMatchRecord) TableName() string { return "match_records" }

// GormPlayerResult is one participant row of a GormMatchRecord.
type GormPlayerResult struct {
	ID        uint   `gorm:"primaryKey"`
	MatchID   uint   `gorm:"index;not null"`
	PlayerID  string `gorm:"not null"`
	Username  string `gorm:"index;not null"`
	Rank      int    `gorm:"not null"`
	Score     int    `gorm:"default:0"`
	Kills     int    `gorm:"default:0"`
	TimeAlive int    `gorm:"default:0"` // seconds
	Winner    bool   `gorm:"default:false"`
}

func (GormPlayerResult) TableName() string { return "player_results" }

// NewGormMatchRecord converts a MatchRecord into its ORM form.
func NewGormMatchRecord(rec *MatchRecord) *GormMatchRecord {
	row := &GormMatchRecord{
		GameID:          rec.GameID,
		RoomID:          rec.RoomID,
		Reason:          rec.Reason,
		DurationSeconds: rec.DurationSeconds,
		FinishedAt:      rec.FinishedAt,
		Results:         make([]GormPlayerResult, 0, len(rec.Players)),
	}
	for _, p := range rec.Players {
		row.Results = append(row.Results, GormPlayerResult{
			PlayerID:  p.PlayerID,
			Username:  p.Username,
			Rank:      p.Rank,
			Score:     p.Score,
			Kills:     p.Kills,
			TimeAlive: p.TimeAlive,
			Winner:    p.Winner,
		})
	}
	return row
}
