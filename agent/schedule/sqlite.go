package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/pkg/sqlitex"
)

const sqliteComponent = "appointments"

var sqliteMigrations = []sqlitex.Migration{
	{Version: 1, SQL: `
CREATE TABLE IF NOT EXISTS appointments (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	practitioner_id TEXT NOT NULL,
	start_at INTEGER NOT NULL,
	end_at INTEGER NOT NULL,
	status TEXT NOT NULL,
	rescheduled_from TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointments_practitioner ON appointments(practitioner_id, start_at);
CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments(patient_id);
`},
	{Version: 2, SQL: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_active_slot
	ON appointments(practitioner_id, start_at) WHERE status = 'scheduled';
`},
}

const appointmentColumns = `id, patient_id, practitioner_id, start_at, end_at, status, rescheduled_from, created_at, updated_at`

// SQLiteStore keeps appointments in SQLite. Times are stored as unix
// milliseconds so range predicates compare numerically.
type SQLiteStore struct {
	db    *sqlitex.DB
	owned bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore migrates the appointments table on db. Close does not close
// a db passed in here.
func NewSQLiteStore(db *sqlitex.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("sqlite db is nil")
	}
	if err := db.Migrate(sqliteComponent, sqliteMigrations); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLiteStore opens path and owns the connection.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlitex.Open(path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Appointment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id)
	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	return appt, err
}

func (s *SQLiteStore) IsAvailable(ctx context.Context, practitionerID string, slot Slot) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE practitioner_id = ? AND status = 'scheduled' AND start_at < ? AND end_at > ?`,
		practitionerID, slot.End().UnixMilli(), slot.Start.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check availability: %w", err)
	}
	return n == 0, nil
}

func (s *SQLiteStore) Book(ctx context.Context, appt Appointment) (Appointment, error) {
	appt, err := prepareBooking(appt, appt.CreatedAt)
	if err != nil {
		return Appointment{}, err
	}

	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := ensureFree(ctx, tx, appt.PractitionerID, appt.Start, appt.End, ""); err != nil {
			return err
		}
		return insertAppointment(ctx, tx, appt)
	})
	if err != nil {
		return Appointment{}, err
	}
	return appt, nil
}

func (s *SQLiteStore) Cancel(ctx context.Context, id string, at time.Time) (Appointment, error) {
	var out Appointment
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		appt, err := getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := cancellable(appt); err != nil {
			return err
		}
		appt.Status = StatusCancelled
		appt.UpdatedAt = at.UTC()
		if err := updateStatus(ctx, tx, appt); err != nil {
			return err
		}
		out = appt
		return nil
	})
	return out, err
}

func (s *SQLiteStore) Reschedule(ctx context.Context, id string, slot Slot, at time.Time) (Appointment, error) {
	var out Appointment
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		old, err := getForUpdate(ctx, tx, id)
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
		if err := ensureFree(ctx, tx, old.PractitionerID, next.Start, next.End, old.ID); err != nil {
			return err
		}

		old.Status = StatusCancelled
		old.UpdatedAt = at.UTC()
		if err := updateStatus(ctx, tx, old); err != nil {
			return err
		}
		if err := insertAppointment(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ListByPractitioner(ctx context.Context, practitionerID string, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE practitioner_id = ? AND start_at < ? AND end_at > ?
		ORDER BY start_at, id`,
		practitionerID, to.UnixMilli(), from.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (s *SQLiteStore) ListByPatient(ctx context.Context, patientID string) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE patient_id = ?
		ORDER BY start_at, id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (s *SQLiteStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func ensureFree(ctx context.Context, tx *sql.Tx, practitionerID string, start, end time.Time, ignoreID string) error {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE practitioner_id = ? AND status = 'scheduled' AND start_at < ? AND end_at > ? AND id != ?`,
		practitionerID, end.UnixMilli(), start.UnixMilli(), ignoreID,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: practitioner=%s start=%s", ErrSlotConflict, practitionerID, start.Format(time.RFC3339))
	}
	return nil
}

func getForUpdate(ctx context.Context, tx *sql.Tx, id string) (Appointment, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id)
	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, fmt.Errorf("%w: id=%s", ErrNotFound, id)
	}
	return appt, err
}

func insertAppointment(ctx context.Context, tx *sql.Tx, a Appointment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PatientID, a.PractitionerID, a.Start.UnixMilli(), a.End.UnixMilli(),
		string(a.Status), nullString(a.RescheduledFrom), a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func updateStatus(ctx context.Context, tx *sql.Tx, a Appointment) error {
	_, err := tx.ExecContext(ctx, "UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?",
		string(a.Status), a.UpdatedAt.UnixMilli(), a.ID)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (Appointment, error) {
	var (
		a                Appointment
		status           string
		from             sql.NullString
		start, end       int64
		created, updated int64
	)
	if err := row.Scan(&a.ID, &a.PatientID, &a.PractitionerID, &start, &end, &status, &from, &created, &updated); err != nil {
		return Appointment{}, err
	}
	a.Start = time.UnixMilli(start).UTC()
	a.End = time.UnixMilli(end).UTC()
	a.Status = Status(status)
	a.RescheduledFrom = from.String
	a.CreatedAt = time.UnixMilli(created).UTC()
	a.UpdatedAt = time.UnixMilli(updated).UTC()
	return a, nil
}

func collectAppointments(rows *sql.Rows) ([]Appointment, error) {
	defer rows.Close()
	out := make([]Appointment, 0, 8)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
