package servicelog

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
	"github.com/totem/totem/pkg/validation"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type serviceLogRepoPG struct{ pool *pgxpool.Pool }

func NewServiceLogRepoPG(pool *pgxpool.Pool) ServiceLogRepository {
	return &serviceLogRepoPG{pool: pool}
}

func (r *serviceLogRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slCols = `id, documento, secretaria, piso, estado, timestamp, created_at, updated_at`

func (r *serviceLogRepoPG) scanRow(row pgx.Row) (*ServiceLog, error) {
	var l ServiceLog
	err := row.Scan(&l.ID, &l.Document, &l.Department, &l.Floor, &l.State,
		&l.Timestamp, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *serviceLogRepoPG) Create(ctx context.Context, l *ServiceLog) error {
	l.ID = uuid.New()
	now := time.Now().UTC()
	if l.Timestamp.IsZero() {
		l.Timestamp = now
	}
	l.CreatedAt, l.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service_logs (id, documento, secretaria, piso, estado, timestamp, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		l.ID, l.Document, l.Department, l.Floor, l.State, l.Timestamp, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert service log: %w", err)
	}
	return nil
}

func (r *serviceLogRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ServiceLog, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slCols+` FROM service_logs WHERE id = $1 AND NOT deleted`, id))
}

func (r *serviceLogRepoPG) Recent(ctx context.Context, f Filter) ([]*ServiceLog, error) {
	return r.query(ctx, `SELECT `+slCols+` FROM service_logs
		WHERE NOT deleted
			AND ($1 = '' OR secretaria = $1)
			AND ($2 = '' OR estado = $2)
		ORDER BY timestamp DESC LIMIT $3`, f.Department, f.State, f.Limit)
}

func (r *serviceLogRepoPG) ListByDocument(ctx context.Context, documento string, limit int) ([]*ServiceLog, error) {
	return r.query(ctx, `SELECT `+slCols+` FROM service_logs
		WHERE NOT deleted AND documento = $1
		ORDER BY timestamp DESC LIMIT $2`, documento, limit)
}

func (r *serviceLogRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, state string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_logs SET estado = $2, updated_at = $3
		WHERE id = $1 AND NOT deleted`, id, state, at)
	if err != nil {
		return false, fmt.Errorf("update service log status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *serviceLogRepoPG) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, state string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_logs SET estado = $2, updated_at = $3
		WHERE id = ANY($1::uuid[]) AND NOT deleted`, strIDs, state, at)
	if err != nil {
		return 0, fmt.Errorf("bulk update service log status: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *serviceLogRepoPG) Delete(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_logs SET deleted = TRUE, deleted_at = $2, updated_at = $2
		WHERE id = $1 AND NOT deleted`, id, at)
	if err != nil {
		return false, fmt.Errorf("delete service log: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Stats runs all four aggregates inside one read-only REPEATABLE READ
// transaction so they observe the same snapshot.
func (r *serviceLogRepoPG) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := newStats()
	err := db.InTx(ctx, r.pool, db.SnapshotTxOptions, func(ctx context.Context) error {
		q := r.conn(ctx)

		if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM service_logs
			WHERE NOT deleted AND timestamp >= $1`, since).Scan(&st.Total); err != nil {
			return fmt.Errorf("count service logs: %w", err)
		}

		if err := r.groupCounts(ctx, q, `SELECT secretaria, COUNT(*) FROM service_logs
			WHERE NOT deleted AND timestamp >= $1 GROUP BY secretaria`, since, st.ByDepartment); err != nil {
			return err
		}

		if err := r.groupCounts(ctx, q, `SELECT to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*)
			FROM service_logs WHERE NOT deleted AND timestamp >= $1 GROUP BY 1`, since, st.ByDay); err != nil {
			return err
		}

		recent, err := r.query(ctx, `SELECT `+slCols+` FROM service_logs
			WHERE NOT deleted AND timestamp >= $1
			ORDER BY timestamp DESC LIMIT $2`, since, StatsRecentLimit)
		if err != nil {
			return err
		}
		st.Recent = recent
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range validation.Departments() {
		if _, ok := st.ByDepartment[d]; !ok {
			st.ByDepartment[d] = 0
		}
	}
	return st, nil
}

func (r *serviceLogRepoPG) groupCounts(ctx context.Context, q queryable, sql string, since time.Time, into map[string]int) error {
	rows, err := q.Query(ctx, sql, since)
	if err != nil {
		return fmt.Errorf("aggregate service logs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan aggregate: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

func (r *serviceLogRepoPG) CountByState(ctx context.Context, state string) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM service_logs
		WHERE NOT deleted AND estado = $1`, state).Scan(&n); err != nil {
		return 0, fmt.Errorf("count service logs: %w", err)
	}
	return n, nil
}

func (r *serviceLogRepoPG) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM service_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge service logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *serviceLogRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*ServiceLog, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query service logs: %w", err)
	}
	defer rows.Close()
	items := []*ServiceLog{}
	for rows.Next() {
		l, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}
