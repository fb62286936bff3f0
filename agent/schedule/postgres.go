package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type appointmentRow struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID              string    `bun:"id,pk"`
	PatientID       string    `bun:"patient_id,notnull"`
	PractitionerID  string    `bun:"practitioner_id,notnull"`
	StartAt         time.Time `bun:"start_at,notnull"`
	EndAt           time.Time `bun:"end_at,notnull"`
	Status          string    `bun:"status,notnull"`
	RescheduledFrom string    `bun:"rescheduled_from,nullzero"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`
}

func toRow(a Appointment) *appointmentRow {
	return &appointmentRow{
		ID:              a.ID,
		PatientID:       a.PatientID,
		PractitionerID:  a.PractitionerID,
		StartAt:         a.Start,
		EndAt:           a.End,
		Status:          string(a.Status),
		RescheduledFrom: a.RescheduledFrom,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func (r *appointmentRow) appointment() Appointment {
	return Appointment{
		ID:              r.ID,
		PatientID:       r.PatientID,
		PractitionerID:  r.PractitionerID,
		Start:           r.StartAt.UTC(),
		End:             r.EndAt.UTC(),
		Status:          Status(r.Status),
		RescheduledFrom: r.RescheduledFrom,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

// PostgresStore keeps appointments in Postgres through bun. Writers of the
// same practitioner are serialized with a transaction-scoped advisory lock;
// a partial unique index backs the no-double-booking rule.
type PostgresStore struct {
	db *bun.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgresStore connects to dsn and creates the schema if needed.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*appointmentRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create appointments table: %w", err)
	}
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS appointments_practitioner_start ON appointments (practitioner_id, start_at)`,
		`CREATE INDEX IF NOT EXISTS appointments_patient ON appointments (patient_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot ON appointments (practitioner_id, start_at) WHERE status = 'scheduled'`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate appointments: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Appointment, error) {
	row := new(appointmentRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return row.appointment(), nil
}

func (s *PostgresStore) IsAvailable(ctx context.Context, practitionerID string, slot Slot) (bool, error) {
	busy, err := overlapQuery(s.db.NewSelect(), practitionerID, slot.Start, slot.End(), "").Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check availability: %w", err)
	}
	return !busy, nil
}

func (s *PostgresStore) Book(ctx context.Context, appt Appointment) (Appointment, error) {
	appt, err := prepareBooking(appt, appt.CreatedAt)
	if err != nil {
		return Appointment{}, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockPractitioner(ctx, tx, appt.PractitionerID); err != nil {
			return err
		}
		if err := pgEnsureFree(ctx, tx, appt.PractitionerID, appt.Start, appt.End, ""); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(toRow(appt)).Exec(ctx)
		return err
	})
	if err != nil {
		return Appointment{}, mapPgError(err, appt)
	}
	return appt, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, id string, at time.Time) (Appointment, error) {
	var out Appointment
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		appt, err := pgGetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := cancellable(appt); err != nil {
			return err
		}
		appt.Status = StatusCancelled
		appt.UpdatedAt = at.UTC()
		if _, err := tx.NewUpdate().Model(toRow(appt)).Column("status", "updated_at").WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		out = appt
		return nil
	})
	return out, err
}

func (s *PostgresStore) Reschedule(ctx context.Context, id string, slot Slot, at time.Time) (Appointment, error) {
	var out Appointment
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		old, err := pgGetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := cancellable(old); err != nil {
			return err
		}
		next, err := replacement(old, slot, at)
		if err != nil {
			return err
		}
		if err := lockPractitioner(ctx, tx, old.PractitionerID); err != nil {
			return err
		}
		if err := pgEnsureFree(ctx, tx, old.PractitionerID, next.Start, next.End, old.ID); err != nil {
			return err
		}

		old.Status = StatusCancelled
		old.UpdatedAt = at.UTC()
		if _, err := tx.NewUpdate().Model(toRow(old)).Column("status", "updated_at").WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if _, err := tx.NewInsert().Model(toRow(next)).Exec(ctx); err != nil {
			return mapPgError(err, next)
		}
		out = next
		return nil
	})
	return out, err
}

func (s *PostgresStore) ListByPractitioner(ctx context.Context, practitionerID string, from, to time.Time) ([]Appointment, error) {
	var rows []appointmentRow
	err := s.db.NewSelect().Model(&rows).
		Where("practitioner_id = ?", practitionerID).
		Where("start_at < ?", to.UTC()).
		Where("end_at > ?", from.UTC()).
		Order("start_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return fromRows(rows), nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	var rows []appointmentRow
	err := s.db.NewSelect().Model(&rows).
		Where("patient_id = ?", patientID).
		Order("start_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return fromRows(rows), nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// truncate removes every row. Tests only.
func (s *PostgresStore) truncate(ctx context.Context) error {
	_, err := s.db.NewTruncateTable().Model((*appointmentRow)(nil)).Exec(ctx)
	return err
}

func overlapQuery(q *bun.SelectQuery, practitionerID string, start, end time.Time, ignoreID string) *bun.SelectQuery {
	q = q.Model((*appointmentRow)(nil)).
		Where("practitioner_id = ?", practitionerID).
		Where("status = ?", string(StatusScheduled)).
		Where("start_at < ?", end.UTC()).
		Where("end_at > ?", start.UTC())
	if ignoreID != "" {
		q = q.Where("id <> ?", ignoreID)
	}
	return q
}

func lockPractitioner(ctx context.Context, tx bun.Tx, practitionerID string) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", practitionerID); err != nil {
		return fmt.Errorf("lock practitioner: %w", err)
	}
	return nil
}

func pgEnsureFree(ctx context.Context, tx bun.Tx, practitionerID string, start, end time.Time, ignoreID string) error {
	busy, err := overlapQuery(tx.NewSelect(), practitionerID, start, end, ignoreID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if busy {
		return fmt.Errorf("%w: practitioner=%s start=%s", ErrSlotConflict, practitionerID, start.Format(time.RFC3339))
	}
	return nil
}

func pgGetForUpdate(ctx context.Context, tx bun.Tx, id string) (Appointment, error) {
	row := new(appointmentRow)
	err := tx.NewSelect().Model(row).Where("id = ?", id).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return row.appointment(), nil
}

// mapPgError turns a unique violation on the active-slot index into
// ErrSlotConflict.
func mapPgError(err error, appt Appointment) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
		return fmt.Errorf("%w: practitioner=%s start=%s", ErrSlotConflict, appt.PractitionerID, appt.Start.Format(time.RFC3339))
	}
	return err
}

func fromRows(rows []appointmentRow) []Appointment {
	out := make([]Appointment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].appointment())
	}
	return out
}
