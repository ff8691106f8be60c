// services/result_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/bombarena/apperr"
	"github.com/wfunc/bombarena/leaderboard"
	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/models"
	"github.com/wfunc/bombarena/persistence"
)

// Leaderboard is the ranking backend, see leaderboard.Board.
type Leaderboard interface {
	Add(ctx context.Context, rec *models.MatchRecord) error
	Top(ctx context.Context, n int64) ([]leaderboard.Entry, error)
}

// Publisher announces finished matches to other services.
type Publisher interface {
	PublishMatchOver(rec *models.MatchRecord) error
}

// ResultService fans a finished match out to history, leaderboard and
// event bus. Every backend is optional.
type ResultService struct {
	store     persistence.Store
	board     Leaderboard
	publisher Publisher
	timeout   time.Duration
}

type Option func(*ResultService)

func WithStore(store persistence.Store) Option {
	return func(s *ResultService) { s.store = store }
}

func WithLeaderboard(board Leaderboard) Option {
	return func(s *ResultService) { s.board = board }
}

func WithPublisher(p Publisher) Option {
	return func(s *ResultService) { s.publisher = p }
}

func WithTimeout(d time.Duration) Option {
	return func(s *ResultService) { s.timeout = d }
}

func NewResultService(opts ...Option) *ResultService {
	s := &ResultService{timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MatchFinished is called once per match by the match manager. Backend
// failures are logged and never reach players.
func (s *ResultService) MatchFinished(rec *models.MatchRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.SaveMatchResult(ctx, rec); err != nil {
			logger.Log.Errorw("save match result failed", "match", rec.GameID, "error", err)
		}
	}
	if s.board != nil {
		if err := s.board.Add(ctx, rec); err != nil {
			logger.Log.Errorw("leaderboard update failed", "match", rec.GameID, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishMatchOver(rec); err != nil {
			logger.Log.Errorw("publish match over failed", "match", rec.GameID, "error", err)
		}
	}
	logger.Log.Infow("match recorded", "match", rec.GameID, "room", rec.RoomID, "reason", rec.Reason)
}

// PlayerStats returns the aggregated history of username.
func (s *ResultService) PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error) {
	if s.store == nil {
		return nil, apperr.New(apperr.NotFound, "match history is disabled")
	}
	stats, err := s.store.PlayerStats(ctx, username)
	if errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.NotFound, "no matches for %s", username)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load player stats", err)
	}
	return stats, nil
}

// Leaderboard returns the top n players.
func (s *ResultService) Leaderboard(ctx context.Context, n int64) ([]leaderboard.Entry, error) {
	if s.board == nil {
		return nil, apperr.New(apperr.NotFound, "leaderboard is disabled")
	}
	entries, err := s.board.Top(ctx, n)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load leaderboard", err)
	}
	return entries, nil
}
