package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/totem/totem/internal/platform/db"
)

const uniqueViolation = "23505"

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, documento, nombre, apellido,
	turno_medico, turno_hora, turno_piso, turno_fecha, turno_especialidad,
	turno_consultorio, turno_confirmado, turno_fecha_confirmacion,
	created_at, updated_at`

func (r *patientRepoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	var doctor, hour, floor, date, specialty, room *string
	err := row.Scan(&p.ID, &p.Document, &p.FirstName, &p.LastName,
		&doctor, &hour, &floor, &date, &specialty,
		&room, &p.Appointment.Confirmed, &p.Appointment.ConfirmedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Appointment.Doctor = strVal(doctor)
	p.Appointment.Time = strVal(hour)
	p.Appointment.Floor = strVal(floor)
	p.Appointment.Date = strVal(date)
	p.Appointment.Specialty = strVal(specialty)
	p.Appointment.Room = strVal(room)
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	a := p.Appointment
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, documento, nombre, apellido,
			turno_medico, turno_hora, turno_piso, turno_fecha, turno_especialidad,
			turno_consultorio, turno_confirmado, turno_fecha_confirmacion,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.Document, p.FirstName, p.LastName,
		strPtr(a.Doctor), strPtr(a.Time), strPtr(a.Floor), strPtr(a.Date), strPtr(a.Specialty),
		strPtr(a.Room), a.Confirmed, a.ConfirmedAt,
		p.CreatedAt, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByDocument(ctx context.Context, documento string) (*Patient, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE documento = $1 AND NOT deleted`, documento))
}

func (r *patientRepoPG) ConfirmAppointment(ctx context.Context, documento string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET turno_confirmado = TRUE,
			turno_fecha_confirmacion = COALESCE(turno_fecha_confirmacion, $2),
			updated_at = $2
		WHERE documento = $1 AND NOT deleted AND COALESCE(TRIM(turno_medico), '') <> ''`,
		documento, at)
	if err != nil {
		return false, fmt.Errorf("confirm appointment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE NOT deleted`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	items, err := r.query(ctx, `SELECT `+patientCols+` FROM patients WHERE NOT deleted
		ORDER BY created_at DESC, documento LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *patientRepoPG) ListConfirmed(ctx context.Context, limit int) ([]*Patient, error) {
	return r.query(ctx, `SELECT `+patientCols+` FROM patients
		WHERE NOT deleted AND turno_confirmado
		ORDER BY turno_fecha_confirmacion DESC NULLS LAST LIMIT $1`, limit)
}

func (r *patientRepoPG) Delete(ctx context.Context, documento string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET deleted = TRUE, deleted_at = $2, updated_at = $2
		WHERE documento = $1 AND NOT deleted`, documento, at)
	if err != nil {
		return false, fmt.Errorf("delete patient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE NOT deleted`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (r *patientRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()
	items := []*Patient{}
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
