package pgstore

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aitoolhub/accountsec/pkg/pg"
	"github.com/aitoolhub/accountsec/pkg/twofactor"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations holds the schema for this store.
var Migrations = pg.Migrations{FS: migrationsFS, Dir: "migrations"}

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Store is a twofactor.Store backed by PostgreSQL.
type Store struct {
	db DB
}

// New returns a Store using db.
func New(db DB) *Store {
	return &Store{db: db}
}

var _ twofactor.Store = (*Store)(nil)

func (s *Store) GetUser(ctx context.Context, userID string) (twofactor.User, error) {
	var (
		u      twofactor.User
		method *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, email, two_factor_enabled, two_factor_method, created_at
		FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Email, &u.TwoFactorEnabled, &method, &u.CreatedAt)
	if err != nil {
		return twofactor.User{}, wrap(err, "get user")
	}
	if method != nil {
		u.TwoFactorMethod = twofactor.Method(*method)
	}
	return u, nil
}

func (s *Store) PutUser(ctx context.Context, user twofactor.User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`,
		user.ID, user.Email, createdAt,
	)
	return wrap(err, "put user")
}

func (s *Store) SaveTotpSecret(ctx context.Context, userID, ciphertext string, now time.Time) error {
	// An enabled credential is never overwritten
	tag, err := s.db.Exec(ctx, `
		INSERT INTO totp_credentials (user_id, secret_ciphertext, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET secret_ciphertext = EXCLUDED.secret_ciphertext,
		    created_at = EXCLUDED.created_at,
		    last_accepted_step = 0
		WHERE totp_credentials.enabled_at IS NULL`,
		userID, ciphertext, now,
	)
	if err != nil {
		return wrap(err, "save totp secret")
	}
	if tag.RowsAffected() == 0 {
		return twofactor.ErrAlreadyEnrolled
	}
	return nil
}

func (s *Store) GetTotpCredential(ctx context.Context, userID string) (twofactor.TotpCredential, error) {
	var c twofactor.TotpCredential
	err := s.db.QueryRow(ctx, `
		SELECT user_id, secret_ciphertext, enabled_at, last_accepted_step, created_at
		FROM totp_credentials WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.SecretCiphertext, &c.EnabledAt, &c.LastAcceptedStep, &c.CreatedAt)
	if err != nil {
		return twofactor.TotpCredential{}, wrap(err, "get totp credential")
	}
	return c, nil
}

func (s *Store) RecordTotpStep(ctx context.Context, userID string, step int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE totp_credentials SET last_accepted_step = $2
		WHERE user_id = $1 AND last_accepted_step < $2`, userID, step)
	if err != nil {
		return false, wrap(err, "record totp step")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetTotpCredential(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) RewindTotpStep(ctx context.Context, userID string, from, to int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE totp_credentials SET last_accepted_step = $3
		WHERE user_id = $1 AND last_accepted_step = $2`, userID, from, to)
	return wrap(err, "rewind totp step")
}

func (s *Store) ActivateMethod(ctx context.Context, userID string, method twofactor.Method, now time.Time) error {
	if method != twofactor.MethodTOTP && method != twofactor.MethodEmail {
		return twofactor.ErrInvalidMethod
	}
	return pg.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if method == twofactor.MethodTOTP {
			tag, err := tx.Exec(ctx, `
				UPDATE totp_credentials SET enabled_at = COALESCE(enabled_at, $2)
				WHERE user_id = $1`, userID, now)
			if err != nil {
				return wrap(err, "enable totp credential")
			}
			if tag.RowsAffected() == 0 {
				return twofactor.ErrNotFound
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE users SET two_factor_enabled = TRUE, two_factor_method = $2
			WHERE id = $1`, userID, string(method))
		if err != nil {
			return wrap(err, "activate method")
		}
		if tag.RowsAffected() == 0 {
			return twofactor.ErrNotFound
		}
		return nil
	})
}

func (s *Store) IssueEmailCode(ctx context.Context, code twofactor.PendingEmailCode, cooldown time.Duration) error {
	// The conditional upsert enforces the cooldown in one statement, so
	// concurrent resends cannot both replace the code.
	var issuedAt time.Time
	err := s.db.QueryRow(ctx, `
		INSERT INTO pending_email_codes (user_id, purpose, code_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    issued_at = EXCLUDED.issued_at,
		    expires_at = EXCLUDED.expires_at,
		    consumed_at = NULL,
		    attempt_count = 0
		WHERE pending_email_codes.consumed_at IS NOT NULL
		   OR pending_email_codes.expires_at <= EXCLUDED.issued_at
		   OR pending_email_codes.issued_at <= $6
		RETURNING issued_at`,
		code.UserID, string(code.Purpose), code.CodeHash, code.IssuedAt, code.ExpiresAt,
		code.IssuedAt.Add(-cooldown),
	).Scan(&issuedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return wrap(err, "issue email code")
	}

	var prev time.Time
	err = s.db.QueryRow(ctx, `
		SELECT issued_at FROM pending_email_codes WHERE user_id = $1 AND purpose = $2`,
		code.UserID, string(code.Purpose),
	).Scan(&prev)
	if err != nil {
		return wrap(err, "issue email code")
	}
	return &twofactor.RetryError{
		Err:        twofactor.ErrResendTooSoon,
		RetryAfter: max(0, prev.Add(cooldown).Sub(code.IssuedAt)),
	}
}

func (s *Store) DeleteEmailCode(ctx context.Context, userID string, purpose twofactor.Purpose, codeHash string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM pending_email_codes WHERE user_id = $1 AND purpose = $2 AND code_hash = $3`,
		userID, string(purpose), codeHash,
	)
	return wrap(err, "delete email code")
}

func (s *Store) ConsumeEmailCode(ctx context.Context, userID string, purpose twofactor.Purpose, candidateHash string, now time.Time, maxAttempts int) (twofactor.EmailCodeResult, error) {
	result := twofactor.EmailCodeMissing
	err := pg.InTx(ctx, s.db, func(tx pgx.Tx) error {
		var (
			code     twofactor.PendingEmailCode
			consumed *time.Time
		)
		err := tx.QueryRow(ctx, `
			SELECT code_hash, expires_at, consumed_at, attempt_count
			FROM pending_email_codes WHERE user_id = $1 AND purpose = $2
			FOR UPDATE`, userID, string(purpose),
		).Scan(&code.CodeHash, &code.ExpiresAt, &consumed, &code.AttemptCount)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case consumed != nil:
			return nil
		case !now.Before(code.ExpiresAt):
			result = twofactor.EmailCodeExpired
			return nil
		case code.AttemptCount >= maxAttempts:
			result = twofactor.EmailCodeLocked
			return nil
		}

		if subtle.ConstantTimeCompare([]byte(code.CodeHash), []byte(candidateHash)) == 1 {
			result = twofactor.EmailCodeAccepted
			_, err = tx.Exec(ctx, `
				UPDATE pending_email_codes SET consumed_at = $3
				WHERE user_id = $1 AND purpose = $2`, userID, string(purpose), now)
			return err
		}

		result = twofactor.EmailCodeMismatch
		if code.AttemptCount+1 >= maxAttempts {
			result = twofactor.EmailCodeLocked
		}
		_, err = tx.Exec(ctx, `
			UPDATE pending_email_codes SET attempt_count = attempt_count + 1
			WHERE user_id = $1 AND purpose = $2`, userID, string(purpose))
		return err
	})
	if err != nil {
		return twofactor.EmailCodeMissing, wrap(err, "consume email code")
	}
	return result, nil
}

func (s *Store) RestoreEmailCode(ctx context.Context, userID string, purpose twofactor.Purpose, codeHash string, consumedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE pending_email_codes SET consumed_at = NULL
		WHERE user_id = $1 AND purpose = $2 AND code_hash = $3 AND consumed_at = $4`,
		userID, string(purpose), codeHash, consumedAt,
	)
	return wrap(err, "restore email code")
}

func (s *Store) ReplaceRecoveryCodes(ctx context.Context, userID string, hashes []string, now time.Time) error {
	return pg.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
			return wrap(err, "replace recovery codes")
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO recovery_codes (id, user_id, code_hash, created_at)
			SELECT gen_random_uuid(), $1, h, $3 FROM unnest($2::text[]) AS h`,
			userID, hashes, now)
		return wrap(err, "replace recovery codes")
	})
}

func (s *Store) RedeemRecoveryCode(ctx context.Context, userID, candidateHash string, now time.Time) (int, bool, error) {
	var (
		remaining int
		ok        bool
	)
	err := pg.InTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE recovery_codes SET used_at = $3
			WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL`,
			userID, candidateHash, now)
		if err != nil {
			return err
		}
		ok = tag.RowsAffected() == 1
		return tx.QueryRow(ctx, `
			SELECT count(*) FROM recovery_codes WHERE user_id = $1 AND used_at IS NULL`, userID,
		).Scan(&remaining)
	})
	if err != nil {
		return 0, false, wrap(err, "redeem recovery code")
	}
	return remaining, ok, nil
}

func (s *Store) RestoreRecoveryCode(ctx context.Context, userID, codeHash string, usedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE recovery_codes SET used_at = NULL
		WHERE user_id = $1 AND code_hash = $2 AND used_at = $3`,
		userID, codeHash, usedAt,
	)
	return wrap(err, "restore recovery code")
}

func (s *Store) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM recovery_codes WHERE user_id = $1 AND used_at IS NULL`, userID,
	).Scan(&n)
	return n, wrap(err, "count recovery codes")
}

func (s *Store) GetEnrollment(ctx context.Context, userID string) (twofactor.Enrollment, error) {
	var (
		e      twofactor.Enrollment
		state  string
		method *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT user_id, state, method, updated_at FROM enrollments WHERE user_id = $1`, userID,
	).Scan(&e.UserID, &state, &method, &e.UpdatedAt)
	if err != nil {
		return twofactor.Enrollment{}, wrap(err, "get enrollment")
	}
	e.State = twofactor.EnrollmentState(state)
	if method != nil {
		e.Method = twofactor.Method(*method)
	}
	return e, nil
}

func (s *Store) SaveEnrollment(ctx context.Context, e twofactor.Enrollment) error {
	var method *string
	if e.Method != "" {
		m := string(e.Method)
		method = &m
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO enrollments (user_id, state, method, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET state = EXCLUDED.state, method = EXCLUDED.method, updated_at = EXCLUDED.updated_at`,
		e.UserID, string(e.State), method, e.UpdatedAt,
	)
	return wrap(err, "save enrollment")
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time, pendingSecretTTL time.Duration) (int64, error) {
	var total int64
	err := pg.InTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM pending_email_codes WHERE consumed_at IS NOT NULL OR expires_at <= $1`, now)
		if err != nil {
			return err
		}
		total += tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
			DELETE FROM totp_credentials WHERE enabled_at IS NULL AND created_at <= $1`,
			now.Add(-pendingSecretTTL))
		if err != nil {
			return err
		}
		total += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, wrap(err, "delete expired")
	}
	return total, nil
}

func wrap(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case pg.IsNotFoundError(err):
		return twofactor.ErrNotFound
	case errors.Is(err, twofactor.ErrNotFound), errors.Is(err, twofactor.ErrAlreadyEnrolled),
		errors.Is(err, twofactor.ErrInvalidMethod):
		return err
	case pg.IsForeignKeyViolationError(err):
		return fmt.Errorf("%s: %w", op, errors.Join(twofactor.ErrNotFound, err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
