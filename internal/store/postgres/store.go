package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const tokenColumns = `token_id, token_number, sequence, patient_id, department_id, doctor_id, priority, status,
	generated_at, queued_at, called_at, consultation_started_at, consultation_ended_at, skip_count, notes, created_by`

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) InsertToken(ctx context.Context, token models.Token) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, tokenArgs(token)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = store.ErrConflict
		}
		return err
	}
	if err = insertTokenEvent(ctx, tx, store.EventTokenCreated, token, s.now()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateToken locks the row, checks the expected status and writes every
// mutable column plus one audit event in a single transaction.
func (s *Store) UpdateToken(ctx context.Context, token models.Token, expected models.Status, action store.Action) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current models.Status
	row := tx.QueryRow(ctx, `SELECT status FROM tokens WHERE token_id = $1 FOR UPDATE`, token.TokenID)
	if err = row.Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTokenNotFound
		}
		return err
	}
	if current != expected {
		err = store.ErrConflict
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tokens
		SET doctor_id = $2, priority = $3, status = $4, queued_at = $5, called_at = $6,
			consultation_started_at = $7, consultation_ended_at = $8, skip_count = $9, notes = $10
		WHERE token_id = $1
	`, token.TokenID, nullIfEmpty(token.DoctorID), token.Priority, token.Status, token.QueuedAt, token.CalledAt,
		token.ConsultationStartedAt, token.ConsultationEndedAt, token.SkipCount, token.Notes)
	if err != nil {
		return err
	}
	if err = insertTokenEvent(ctx, tx, store.EventType(action), token, s.now()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListTokensSince(ctx context.Context, since time.Time) ([]models.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tokenColumns+`
		FROM tokens
		WHERE generated_at >= $1
		ORDER BY generated_at ASC, token_number ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *Store) ListTokenEvents(ctx context.Context, tokenID string) ([]store.TokenEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_id, token_seq, type, payload, created_at, prev_hash, hash
		FROM token_events
		WHERE token_id = $1
		ORDER BY token_seq ASC
	`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.TokenEvent
	for rows.Next() {
		var event store.TokenEvent
		var payload []byte
		if err := rows.Scan(&event.TokenID, &event.TokenSeq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = json.RawMessage(payload)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, store.ErrTokenNotFound
	}
	return events, nil
}

// Next allocates from token_sequences. The upsert serialises concurrent
// callers on the scope row.
func (s *Store) Next(ctx context.Context, scope string) (int64, error) {
	var next int64
	row := s.pool.QueryRow(ctx, `
		INSERT INTO token_sequences (scope, next_number)
		VALUES ($1, 1)
		ON CONFLICT (scope)
		DO UPDATE SET next_number = token_sequences.next_number + 1
		RETURNING next_number
	`, scope)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	var patient models.Patient
	var email sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT patient_id, name, phone, email, senior_citizen, pregnant
		FROM patients
		WHERE patient_id = $1
	`, patientID)
	if err := row.Scan(&patient.PatientID, &patient.Name, &patient.Phone, &email, &patient.SeniorCitizen, &patient.Pregnant); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, store.ErrPatientNotFound
		}
		return models.Patient{}, err
	}
	patient.Email = email.String
	return patient, nil
}

func (s *Store) GetDepartment(ctx context.Context, departmentID string) (models.Department, error) {
	var department models.Department
	row := s.pool.QueryRow(ctx, `
		SELECT department_id, name, code FROM departments WHERE department_id = $1
	`, departmentID)
	if err := row.Scan(&department.DepartmentID, &department.Name, &department.Code); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Department{}, store.ErrDepartmentNotFound
		}
		return models.Department{}, err
	}
	return department, nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]models.Department, error) {
	rows, err := s.pool.Query(ctx, `SELECT department_id, name, code FROM departments ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []models.Department
	for rows.Next() {
		var department models.Department
		if err := rows.Scan(&department.DepartmentID, &department.Name, &department.Code); err != nil {
			return nil, err
		}
		departments = append(departments, department)
	}
	return departments, rows.Err()
}

const doctorColumns = `doctor_id, name, specialization, department_id, room_number, available,
	consultation_duration_minutes, max_patients_per_day`

func (s *Store) GetDoctor(ctx context.Context, doctorID string) (models.Doctor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE doctor_id = $1`, doctorID)
	doctor, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Doctor{}, store.ErrDoctorNotFound
		}
		return models.Doctor{}, err
	}
	return doctor, nil
}

func (s *Store) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+doctorColumns+` FROM doctors ORDER BY doctor_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []models.Doctor
	for rows.Next() {
		doctor, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, doctor)
	}
	return doctors, rows.Err()
}

func (s *Store) GetStaff(ctx context.Context, username string) (models.Staff, error) {
	var staff models.Staff
	row := s.pool.QueryRow(ctx, `
		SELECT username, password_hash, role FROM staff WHERE username = $1 AND active
	`, username)
	if err := row.Scan(&staff.Username, &staff.PasswordHash, &staff.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Staff{}, store.ErrStaffNotFound
		}
		return models.Staff{}, err
	}
	return staff, nil
}

// insertTokenEvent appends to the token's hash chain. The advisory lock keeps
// concurrent writers for one token from reading the same tail.
func insertTokenEvent(ctx context.Context, tx pgx.Tx, eventType string, token models.Token, createdAt time.Time) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, token.TokenID); err != nil {
		return err
	}

	var prev *store.TokenEvent
	var last store.TokenEvent
	row := tx.QueryRow(ctx, `
		SELECT token_seq, hash
		FROM token_events
		WHERE token_id = $1
		ORDER BY token_seq DESC
		LIMIT 1
	`, token.TokenID)
	switch err := row.Scan(&last.TokenSeq, &last.Hash); {
	case err == nil:
		prev = &last
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	event, err := store.NextTokenEvent(prev, eventType, token, createdAt.Truncate(time.Microsecond))
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO token_events (token_id, token_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.TokenID, event.TokenSeq, event.Type, []byte(event.Payload), event.CreatedAt, event.PrevHash, event.Hash)
	return err
}

func tokenArgs(token models.Token) []any {
	return []any{
		token.TokenID, token.TokenNumber, token.Sequence, token.PatientID, token.DepartmentID,
		nullIfEmpty(token.DoctorID), token.Priority, token.Status, token.GeneratedAt, token.QueuedAt,
		token.CalledAt, token.ConsultationStartedAt, token.ConsultationEndedAt, token.SkipCount,
		token.Notes, token.CreatedBy,
	}
}

func scanToken(row pgx.Row) (models.Token, error) {
	var token models.Token
	var doctorID sql.NullString
	var calledAt, startedAt, endedAt sql.NullTime
	if err := row.Scan(
		&token.TokenID, &token.TokenNumber, &token.Sequence, &token.PatientID, &token.DepartmentID,
		&doctorID, &token.Priority, &token.Status, &token.GeneratedAt, &token.QueuedAt,
		&calledAt, &startedAt, &endedAt, &token.SkipCount, &token.Notes, &token.CreatedBy,
	); err != nil {
		return models.Token{}, err
	}
	token.DoctorID = doctorID.String
	token.CalledAt = nullTimePtr(calledAt)
	token.ConsultationStartedAt = nullTimePtr(startedAt)
	token.ConsultationEndedAt = nullTimePtr(endedAt)
	return token, nil
}

func scanDoctor(row pgx.Row) (models.Doctor, error) {
	var doctor models.Doctor
	var specialization, room sql.NullString
	if err := row.Scan(
		&doctor.DoctorID, &doctor.Name, &specialization, &doctor.DepartmentID, &room, &doctor.Available,
		&doctor.ConsultationDurationMinutes, &doctor.MaxPatientsPerDay,
	); err != nil {
		return models.Doctor{}, err
	}
	doctor.Specialization = specialization.String
	doctor.RoomNumber = room.String
	return doctor, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}
