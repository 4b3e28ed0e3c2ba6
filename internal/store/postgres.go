package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const accountColumns = `id, display_name, email, password_hash, plan, is_email_verified,
	COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var acc Account
	var expires sql.NullTime
	err := row.Scan(&acc.ID, &acc.DisplayName, &acc.Email, &acc.PasswordHash, &acc.Plan, &acc.IsEmailVerified,
		&acc.VerificationToken, &expires, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	if expires.Valid {
		t := expires.Time
		acc.VerificationExpiresAt = &t
	}
	return acc, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acc Account) error {
	if acc.Plan == "" {
		acc.Plan = PlanFree
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, email, password_hash, plan, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, NULLIF($7, ''))
	`, acc.ID, acc.DisplayName, acc.Email, acc.PasswordHash, acc.Plan, acc.IsEmailVerified, acc.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=LOWER($1)`, email)
	return scanAccount(row)
}

func (s *PostgresStore) UpdateAccountVerificationToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, accountID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyAccountEmail(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET password_hash=$2, updated_at=NOW() WHERE id=$1`, accountID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetAccountPlan(ctx context.Context, accountID, plan string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET plan=$2, updated_at=NOW() WHERE id=$1`, accountID, plan)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, account_id, expires_at) VALUES ($1, $2, $3)
	`, token, accountID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var accountID string
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&accountID)
	if err != nil {
		return "", err
	}
	return accountID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, accountID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, account_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET account_id=EXCLUDED.account_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, accountID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the account that owns a live refresh session.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var accountID string
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`, tokenHash).Scan(&accountID)
	if err != nil {
		return "", err
	}
	return accountID, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

const recordColumns = `collection, id, owner_id, payload, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	var payload []byte
	if err := row.Scan(&rec.Collection, &rec.ID, &rec.OwnerID, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return Record{}, fmt.Errorf("decode record %s/%s: %w", rec.Collection, rec.ID, err)
	}
	if rec.Payload == nil {
		rec.Payload = map[string]any{}
	}
	return rec, nil
}

// ListRecords returns the owner's records in creation order. Each filter
// entry must match the text form of the payload field.
func (s *PostgresStore) ListRecords(ctx context.Context, collection, ownerID string, filter map[string]string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE collection=$1 AND owner_id=$2`
	args := []any{collection, ownerID}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, filter[k])
		query += fmt.Sprintf(` AND payload->>($%d::text) = $%d`, len(args)-1, len(args))
	}
	query += ` ORDER BY created_at ASC, seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRecord(ctx context.Context, collection, ownerID, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE collection=$1 AND owner_id=$2 AND id=$3`,
		collection, ownerID, id)
	return scanRecord(row)
}

func (s *PostgresStore) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO records (collection, id, owner_id, payload)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING `+recordColumns,
		rec.Collection, rec.ID, rec.OwnerID, string(payload))
	out, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	return out, nil
}

// UpdateRecord shallow-merges patch into the stored payload. It returns
// sql.ErrNoRows when the record does not exist for this owner.
func (s *PostgresStore) UpdateRecord(ctx context.Context, collection, ownerID, id string, patch map[string]any) (Record, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return Record{}, fmt.Errorf("encode patch: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE records SET payload = payload || $4::jsonb, updated_at = NOW()
		WHERE collection=$1 AND owner_id=$2 AND id=$3
		RETURNING `+recordColumns,
		collection, ownerID, id, string(payload))
	out, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, err
	}
	if err != nil {
		return Record{}, fmt.Errorf("update record: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, collection, ownerID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection=$1 AND owner_id=$2 AND id=$3`, collection, ownerID, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return n > 0, nil
}

// FieldTakenByOther reports whether another owner already has a record in
// the collection whose field equals value, ignoring case.
func (s *PostgresStore) FieldTakenByOther(ctx context.Context, collection, field, value, ownerID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM records
			WHERE collection=$1 AND owner_id<>$4 AND LOWER(payload->>($2::text)) = LOWER($3)
		)
	`, collection, field, strings.TrimSpace(value), ownerID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check %s.%s: %w", collection, field, err)
	}
	return taken, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
