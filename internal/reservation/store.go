// Package reservation owns the booking ledger: temporary holds with a
// TTL, confirmation, cancellation and remarcation, plus the sweeper
// that reclaims lapsed holds.
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marcador/internal/database"
	"marcador/internal/metrics"
	"marcador/internal/model"
	"marcador/internal/overlap"
)

// DefaultHoldTTL is the hold duration used when none is configured.
const DefaultHoldTTL = 10 * time.Minute

// CacheInvalidator drops any cached availability for a date after the
// ledger changed under it.
type CacheInvalidator interface {
	InvalidateDate(ctx context.Context, date string)
}

// Store executes every ledger mutation under a single process-wide
// lock: the conflict re-check and the write happen atomically with
// respect to concurrent callers.
type Store struct {
	db          *database.DB
	catalog     overlap.Catalog
	overlaps    *overlap.Engine
	holdTTL     time.Duration
	invalidator CacheInvalidator
	logger      *zerolog.Logger

	mu sync.Mutex
}

// NewStore creates the ledger store. invalidator may be nil.
func NewStore(db *database.DB, cat overlap.Catalog, holdTTL time.Duration, invalidator CacheInvalidator, logger *zerolog.Logger) *Store {
	if holdTTL <= 0 {
		holdTTL = DefaultHoldTTL
	}
	return &Store{
		db:          db,
		catalog:     cat,
		overlaps:    overlap.NewEngine(cat),
		holdTTL:     holdTTL,
		invalidator: invalidator,
		logger:      logger,
	}
}

// HoldTTL returns the configured hold duration.
func (s *Store) HoldTTL() time.Duration {
	return s.holdTTL
}

// Reserve creates a temporary hold for the slot, valid for ttl (the
// configured default when ttl is zero). The conflict check runs inside
// the critical section against the live ledger, so two racing calls
// for the same slot cannot both succeed. Reserved rows whose TTL
// already lapsed do not block admission.
func (s *Store) Reserve(ctx context.Context, date, timeStr, customerID, serviceID string, ttl time.Duration) (*model.Reservation, error) {
	if ttl <= 0 {
		ttl = s.holdTTL
	}
	if _, err := overlap.ParseDate(date); err != nil {
		return nil, err
	}
	if _, err := overlap.ParseTimeOfDay(timeStr); err != nil {
		return nil, err
	}
	svc, err := s.catalog.Get(serviceID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, err := s.activeOnDateLocked(ctx, date, now, "")
	if err != nil {
		return nil, err
	}
	reason, err := s.overlaps.ServiceConflicts(serviceID, timeStr, existing)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		metrics.IncReservationConflict()
		return nil, &ConflictError{Reason: reason}
	}

	res := &model.Reservation{
		Key:                    model.ReservationKey(date, timeStr, customerID),
		Date:                   date,
		Time:                   timeStr,
		CustomerID:             customerID,
		ServiceID:              serviceID,
		ServiceDurationMinutes: svc.DurationMinutes,
		Status:                 model.StatusReserved,
		CreatedAt:              now,
		ReservedUntil:          now.Add(ttl),
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO reservations
			(key, date, time, customer_id, service_id, service_duration_minutes,
			 status, created_at, reserved_until, confirmed_at, cancelled_at, remarcation_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, 0)`,
			res.Key, res.Date, res.Time, res.CustomerID, res.ServiceID, res.ServiceDurationMinutes,
			res.Status, res.CreatedAt, res.ReservedUntil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("persist hold: %w", err)
	}

	metrics.IncReservationCreated()
	s.invalidate(ctx, date)
	s.logger.Info().
		Str("key", res.Key).
		Str("service", serviceID).
		Time("reserved_until", res.ReservedUntil).
		Msg("hold created")
	return res, nil
}

// Confirm promotes a live hold to a confirmed booking. A lapsed hold
// fails with ErrReservationExpired even if the sweeper has not visited
// it yet.
func (s *Store) Confirm(ctx context.Context, key string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.getLocked(ctx, key)
	if err != nil {
		return nil, err
	}
	if res.Status != model.StatusReserved {
		return nil, fmt.Errorf("%w: %s is %s", ErrReservationNotFound, key, res.Status)
	}
	now := time.Now()
	if res.HoldExpired(now) {
		return nil, fmt.Errorf("%w: hold lapsed at %s", ErrReservationExpired, res.ReservedUntil.Format(time.RFC3339))
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = ?, confirmed_at = ? WHERE key = ?`,
			model.StatusConfirmed, now, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("confirm %s: %w", key, err)
	}

	res.Status = model.StatusConfirmed
	res.ConfirmedAt = &now
	metrics.IncReservationFinalized(model.StatusConfirmed)
	s.logger.Info().Str("key", key).Msg("reservation confirmed")
	return res, nil
}

// Cancel releases the slot. Cancelling an already terminal record is a
// no-op success so retried cancellations stay safe.
func (s *Store) Cancel(ctx context.Context, key string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.getLocked(ctx, key)
	if err != nil {
		return nil, err
	}
	if res.Status == model.StatusCancelled || res.Status == model.StatusExpired {
		return res, nil
	}

	now := time.Now()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = ?, cancelled_at = ? WHERE key = ?`,
			model.StatusCancelled, now, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", key, err)
	}

	res.Status = model.StatusCancelled
	res.CancelledAt = &now
	metrics.IncReservationFinalized(model.StatusCancelled)
	s.invalidate(ctx, res.Date)
	s.logger.Info().Str("key", key).Msg("reservation cancelled")
	return res, nil
}

// Reschedule moves a live hold or a confirmed booking to a new slot.
// The record drops back to a fresh hold with a new TTL, its key is
// regenerated and its remarcation counter incremented. A single
// remarcation is allowed per record.
func (s *Store) Reschedule(ctx context.Context, key, newDate, newTime string) (*model.Reservation, error) {
	if _, err := overlap.ParseDate(newDate); err != nil {
		return nil, err
	}
	if _, err := overlap.ParseTimeOfDay(newTime); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.getLocked(ctx, key)
	if err != nil {
		return nil, err
	}
	if res.Status != model.StatusReserved && res.Status != model.StatusConfirmed {
		return nil, fmt.Errorf("%w: %s is %s", ErrReservationNotFound, key, res.Status)
	}
	now := time.Now()
	if res.HoldExpired(now) {
		return nil, fmt.Errorf("%w: hold lapsed at %s", ErrReservationExpired, res.ReservedUntil.Format(time.RFC3339))
	}
	if res.RemarcationCount >= 1 {
		return nil, fmt.Errorf("%w: %s", ErrRemarcationLimitReached, key)
	}

	// The record's own slot must not block its new placement.
	existing, err := s.activeOnDateLocked(ctx, newDate, now, key)
	if err != nil {
		return nil, err
	}
	reason, err := s.overlaps.ServiceConflicts(res.ServiceID, newTime, existing)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		metrics.IncReservationConflict()
		return nil, &ConflictError{Reason: reason}
	}

	newKey := model.ReservationKey(newDate, newTime, res.CustomerID)
	newUntil := now.Add(s.holdTTL)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// A terminal row of the same customer may still hold the
		// target key. It does not occupy the slot, so it gives way.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM reservations WHERE key = ? AND status IN (?, ?)`,
			newKey, model.StatusCancelled, model.StatusExpired); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE reservations
			SET key = ?, date = ?, time = ?, status = ?,
			    reserved_until = ?, confirmed_at = NULL,
			    remarcation_count = remarcation_count + 1
			WHERE key = ?`,
			newKey, newDate, newTime, model.StatusReserved, newUntil, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reschedule %s: %w", key, err)
	}

	oldDate := res.Date
	res.Key = newKey
	res.Date = newDate
	res.Time = newTime
	res.Status = model.StatusReserved
	res.ReservedUntil = newUntil
	res.ConfirmedAt = nil
	res.RemarcationCount++
	s.invalidate(ctx, oldDate)
	s.invalidate(ctx, newDate)
	s.logger.Info().
		Str("old_key", key).
		Str("new_key", newKey).
		Int("remarcations", res.RemarcationCount).
		Msg("reservation rescheduled")
	return res, nil
}

// Get returns the record for a key.
func (s *Store) Get(ctx context.Context, key string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, key)
}

// ActiveOnDate returns the reservations that occupy slots on a date:
// confirmed bookings plus holds whose TTL has not lapsed.
func (s *Store) ActiveOnDate(ctx context.Context, date string) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeOnDateLocked(ctx, date, time.Now(), "")
}

// ActiveForCustomer returns the customer's soonest upcoming active
// reservation, or nil when there is none.
func (s *Store) ActiveForCustomer(ctx context.Context, customerID string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE customer_id = ? AND status IN (?, ?)
		ORDER BY date, time`,
		customerID, model.StatusReserved, model.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("query customer reservations: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		if res.HoldExpired(now) {
			continue
		}
		startsAt, err := res.StartsAt(now.Location())
		if err != nil || startsAt.Before(now) {
			continue
		}
		return res, nil
	}
	return nil, rows.Err()
}

// ListByDate returns every ledger row for a date regardless of status,
// ordered by slot time.
func (s *Store) ListByDate(ctx context.Context, date string) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE date = ?
		ORDER BY time`, date)
	if err != nil {
		return nil, fmt.Errorf("query reservations by date: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

// ListRange returns rows with from <= date <= to, ordered by date and
// time. Used by the export report.
func (s *Store) ListRange(ctx context.Context, from, to string) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE date >= ? AND date <= ?
		ORDER BY date, time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query reservation range: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (s *Store) getLocked(ctx context.Context, key string) (*model.Reservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE key = ?`, key)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", key, err)
	}
	return res, nil
}

// activeOnDateLocked is the admission view of a date. Lapsed holds are
// excluded even before the sweeper marks them, and excludeKey lets a
// reschedule ignore its own record.
func (s *Store) activeOnDateLocked(ctx context.Context, date string, now time.Time, excludeKey string) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE date = ? AND status IN (?, ?)
		ORDER BY time`,
		date, model.StatusReserved, model.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("query active reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		if res.Key == excludeKey {
			continue
		}
		if res.HoldExpired(now) {
			continue
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// withTx runs fn inside a transaction so a ledger mutation lands
// entirely or not at all.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) invalidate(ctx context.Context, date string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateDate(ctx, date)
	}
}

const reservationColumns = `key, date, time, customer_id, service_id,
	service_duration_minutes, status, created_at, reserved_until,
	confirmed_at, cancelled_at, remarcation_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var res model.Reservation
	var confirmedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&res.Key, &res.Date, &res.Time, &res.CustomerID, &res.ServiceID,
		&res.ServiceDurationMinutes, &res.Status, &res.CreatedAt, &res.ReservedUntil,
		&confirmedAt, &cancelledAt, &res.RemarcationCount)
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		res.ConfirmedAt = &confirmedAt.Time
	}
	if cancelledAt.Valid {
		res.CancelledAt = &cancelledAt.Time
	}
	return &res, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
