package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dayvson009/compraslivre.tec/internal/payment"
)

const uniqueViolation = "23505"

// PostgresStore implements payment.RecordStore on top of a pgx pool.
// All mutations are single-statement conditional updates so concurrent
// webhook and poller writers never need coordination.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Create(ctx context.Context, rec *payment.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payments (payment_id, amount, description, status, target_url, access_token, email, product_url)
		 VALUES ($1, $2, $3, 'pending', $4, $5, NULLIF($6, ''), NULLIF($7, ''))`,
		rec.PaymentID, rec.AmountCents, rec.Description, rec.TargetURL, rec.AccessToken, rec.Email, rec.ProductURL,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return payment.ErrDuplicate
		}
		return fmt.Errorf("insert payment record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByPaymentID(ctx context.Context, paymentID string) (*payment.Record, error) {
	return s.getBy(ctx, "payment_id", paymentID)
}

func (s *PostgresStore) GetByAccessToken(ctx context.Context, token string) (*payment.Record, error) {
	return s.getBy(ctx, "access_token", token)
}

func (s *PostgresStore) getBy(ctx context.Context, column, value string) (*payment.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT payment_id, amount, COALESCE(description, ''), status, target_url, access_token,
		        COALESCE(email, ''), COALESCE(access_password, ''), COALESCE(product_url, ''),
		        created_at, paid_at
		   FROM payments WHERE `+column+` = $1`,
		value,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("select payment record: %w", err)
	}
	return rec, nil
}

// MarkPaid performs the reconciliation core's single atomic update:
// the status guard makes repeated calls no-ops, and COALESCE keeps
// paid_at and access_password write-once.
func (s *PostgresStore) MarkPaid(ctx context.Context, paymentID, password string, paidAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payments
		    SET status = 'paid',
		        paid_at = COALESCE(paid_at, $2),
		        access_password = COALESCE(access_password, $3)
		  WHERE payment_id = $1 AND status = 'pending'`,
		paymentID, paidAt, password,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) EnsureAccessPassword(ctx context.Context, token, candidate string) (string, error) {
	var stored string
	err := s.pool.QueryRow(ctx,
		`UPDATE payments
		    SET access_password = COALESCE(access_password, $2)
		  WHERE access_token = $1
		 RETURNING access_password`,
		token, candidate,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", payment.ErrNotFound
		}
		return "", fmt.Errorf("ensure access password: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) ListPendingIDs(ctx context.Context, lookback time.Duration, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payment_id FROM payments
		  WHERE status = 'pending' AND created_at >= $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		time.Now().Add(-lookback), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending payment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending payments: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) SetEmail(ctx context.Context, token, email string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payments SET email = $2 WHERE access_token = $1`,
		token, email,
	)
	if err != nil {
		return fmt.Errorf("update payment email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPaidByCredentials(ctx context.Context, email, password string, limit int) ([]payment.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payment_id, amount, COALESCE(description, ''), status, target_url, access_token,
		        COALESCE(email, ''), COALESCE(access_password, ''), COALESCE(product_url, ''),
		        created_at, paid_at
		   FROM payments
		  WHERE email = $1 AND access_password = $2 AND status = 'paid'
		  ORDER BY created_at DESC
		  LIMIT $3`,
		email, password, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list paid payments: %w", err)
	}
	defer rows.Close()

	var out []payment.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paid payment: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paid payments: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*payment.Record, error) {
	var rec payment.Record
	var paidAt *time.Time
	err := row.Scan(
		&rec.PaymentID, &rec.AmountCents, &rec.Description, &rec.Status, &rec.TargetURL,
		&rec.AccessToken, &rec.Email, &rec.AccessPassword, &rec.ProductURL,
		&rec.CreatedAt, &paidAt,
	)
	if err != nil {
		return nil, err
	}
	rec.PaidAt = paidAt
	return &rec, nil
}
