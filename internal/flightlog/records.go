package flightlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/precision.land/internal/flight"
)

// State machines named in transition records.
const (
	MachineDetection = "detection"
	MachineLanding   = "landing"
)

// Session is one landing attempt.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time // zero while the attempt is open
	Start     flight.PositionNED
	StartYaw  float64
	Outcome   string
}

// Open reports whether the session has not been ended.
func (s Session) Open() bool { return s.EndedAt.IsZero() }

// TransitionRecord is a mode change of one of the state machines.
type TransitionRecord struct {
	Session  string
	Machine  string
	From     string
	To       string
	At       time.Time
	Altitude float64
}

// TickRecord is a snapshot of one control tick.
type TickRecord struct {
	Session       string
	At            time.Time
	DetectionMode string
	LandingMode   string
	Altitude      float64
	ErrorX        float64 // filtered, normalised
	ErrorY        float64
	Velocity      flight.VelocityBody
	Command       string
}

// InsertSession stores a newly started session.
func (s *Store) InsertSession(ctx context.Context, sess Session) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO sessions (session_id, started_unix_ns, start_north_m, start_east_m, start_down_m, start_yaw_deg)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StartedAt.UnixNano(), sess.Start.North, sess.Start.East, sess.Start.Down, sess.StartYaw)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	return nil
}

// EndSession closes a session with its outcome.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time, outcome string) error {
	res, err := s.ExecContext(ctx,
		`UPDATE sessions SET ended_unix_ns = ?, outcome = ? WHERE session_id = ?`,
		at.UnixNano(), outcome, id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to end session %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// InsertTransition stores one transition.
func (s *Store) InsertTransition(ctx context.Context, tr TransitionRecord) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO transitions (session_id, machine, from_mode, to_mode, at_unix_ns, altitude_m)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tr.Session, tr.Machine, tr.From, tr.To, tr.At.UnixNano(), tr.Altitude)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// InsertTicks stores a batch of ticks in one transaction.
func (s *Store) InsertTicks(ctx context.Context, ticks []TickRecord) error {
	if len(ticks) == 0 {
		return nil
	}
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tick batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticks (session_id, at_unix_ns, detection_mode, landing_mode, altitude_m,
			error_x, error_y, forward_m_s, right_m_s, down_m_s, command)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tick insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.ExecContext(ctx, t.Session, t.At.UnixNano(), t.DetectionMode, t.LandingMode,
			t.Altitude, t.ErrorX, t.ErrorY, t.Velocity.Forward, t.Velocity.Right, t.Velocity.Down, t.Command); err != nil {
			return fmt.Errorf("failed to insert tick: %w", err)
		}
	}
	return tx.Commit()
}

// Sessions returns the most recent sessions, newest first. limit <= 0 returns
// all of them.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	q := `SELECT session_id, started_unix_ns, ended_unix_ns, start_north_m, start_east_m, start_down_m,
			start_yaw_deg, outcome
		FROM sessions ORDER BY started_unix_ns DESC`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Session returns one session by ID.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	row := s.QueryRowContext(ctx, `
		SELECT session_id, started_unix_ns, ended_unix_ns, start_north_m, start_east_m, start_down_m,
			start_yaw_deg, outcome
		FROM sessions WHERE session_id = ?`, id)
	return scanSession(row)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		sess    Session
		started int64
		ended   sql.NullInt64
		outcome sql.NullString
	)
	if err := sc.Scan(&sess.ID, &started, &ended, &sess.Start.North, &sess.Start.East, &sess.Start.Down,
		&sess.StartYaw, &outcome); err != nil {
		return Session{}, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.StartedAt = time.Unix(0, started)
	if ended.Valid {
		sess.EndedAt = time.Unix(0, ended.Int64)
	}
	sess.Outcome = outcome.String
	return sess, nil
}

// Transitions returns a session's transitions in time order.
func (s *Store) Transitions(ctx context.Context, id string) ([]TransitionRecord, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT session_id, machine, from_mode, to_mode, at_unix_ns, altitude_m
		FROM transitions WHERE session_id = ? ORDER BY at_unix_ns, transition_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var tr TransitionRecord
		var at int64
		if err := rows.Scan(&tr.Session, &tr.Machine, &tr.From, &tr.To, &at, &tr.Altitude); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.At = time.Unix(0, at)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Ticks returns a session's tick records in time order.
func (s *Store) Ticks(ctx context.Context, id string) ([]TickRecord, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT session_id, at_unix_ns, detection_mode, landing_mode, altitude_m,
			error_x, error_y, forward_m_s, right_m_s, down_m_s, command
		FROM ticks WHERE session_id = ? ORDER BY at_unix_ns`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var out []TickRecord
	for rows.Next() {
		var t TickRecord
		var at int64
		if err := rows.Scan(&t.Session, &at, &t.DetectionMode, &t.LandingMode, &t.Altitude,
			&t.ErrorX, &t.ErrorY, &t.Velocity.Forward, &t.Velocity.Right, &t.Velocity.Down, &t.Command); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		t.At = time.Unix(0, at)
		out = append(out, t)
	}
	return out, rows.Err()
}
