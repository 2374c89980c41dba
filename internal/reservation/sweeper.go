package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marcador/internal/metrics"
	"marcador/internal/model"
)

// DefaultSweepInterval is how often the sweeper scans for lapsed holds.
const DefaultSweepInterval = time.Minute

// Sweeper marks lapsed holds as expired on a fixed interval so their
// slots return to the availability pool.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *zerolog.Logger

	// OnExpired, when set, is called once per reclaimed hold.
	OnExpired func(res *model.Reservation)
}

// NewSweeper creates a sweeper over the ledger store.
func NewSweeper(store *Store, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepOnce expires every lapsed hold and returns how many rows were
// released. Sweeping twice in a row is harmless; the second pass finds
// nothing.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	now := time.Now()
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = ? AND reserved_until < ?`,
		model.StatusReserved, now)
	if err != nil {
		return 0, fmt.Errorf("query lapsed holds: %w", err)
	}
	lapsed, err := collectReservations(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}
	if len(lapsed) == 0 {
		return 0, nil
	}

	expired := 0
	for i := range lapsed {
		res := &lapsed[i]
		_, err := s.store.db.ExecContext(ctx,
			`UPDATE reservations SET status = ? WHERE key = ? AND status = ?`,
			model.StatusExpired, res.Key, model.StatusReserved)
		if err != nil {
			s.logger.Error().Err(err).Str("key", res.Key).Msg("failed to expire hold")
			continue
		}
		expired++
		metrics.IncReservationFinalized(model.StatusExpired)
		s.store.invalidate(ctx, res.Date)
		s.logger.Info().Str("key", res.Key).Msg("hold expired")
		if s.OnExpired != nil {
			res.Status = model.StatusExpired
			s.OnExpired(res)
		}
	}

	metrics.AddSweeperExpired(expired)
	return expired, nil
}
