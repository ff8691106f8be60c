// Package leaderboard keeps accumulated scores and wins in redis sorted
// sets.
package leaderboard

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/bombarena/config"
	"github.com/wfunc/bombarena/models"
)

type Entry struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
	Wins     int64  `json:"wins"`
}

type Board struct {
	client  redis.UniversalClient
	key     string
	winsKey string
}

func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func New(client redis.UniversalClient, key string) *Board {
	return &Board{client: client, key: key, winsKey: key + ":wins"}
}

// Add folds a finished match into the totals.
func (b *Board) Add(ctx context.Context, rec *models.MatchRecord) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range rec.Players {
			pipe.ZIncrBy(ctx, b.key, float64(p.Score), p.Username)
			if p.Winner {
				pipe.ZIncrBy(ctx, b.winsKey, 1, p.Username)
			}
		}
		return nil
	})
	return err
}

// Top returns the n best players by accumulated score.
func (b *Board) Top(ctx context.Context, n int64) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	scores, err := b.client.ZRevRangeWithScores(ctx, b.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	wins := make([]*redis.FloatCmd, len(scores))
	_, err = b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, z := range scores {
			username, _ := z.Member.(string)
			wins[i] = pipe.ZScore(ctx, b.winsKey, username)
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(scores))
	for i, z := range scores {
		username, _ := z.Member.(string)
		won, err := wins[i].Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		entries = append(entries, Entry{Username: username, Score: int64(z.Score), Wins: int64(won)})
	}
	return entries, nil
}

func (b *Board) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Board) Close() error {
	return b.client.Close()
}
