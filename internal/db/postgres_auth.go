package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jobboard/backend/internal/model"
)

const userColumns = `id, username, email, password_hash, role, COALESCE(company_id, ''),
	full_name, phone_number, bio, skills, resume_url, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CompanyID,
		&user.Profile.FullName,
		&user.Profile.PhoneNumber,
		&user.Profile.Bio,
		&user.Profile.Skills,
		&user.Profile.ResumeURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) CreateCompany(ctx context.Context, name string) (string, error) {
	const op = "storage.postgres.CreateCompany"

	id := uuid.NewString()
	if _, err := db.Pool.Exec(ctx, `INSERT INTO companies (id, company_name) VALUES ($1, $2)`, id, name); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

func (db *Postgres) CompanyExists(ctx context.Context, companyID string) (bool, error) {
	const op = "storage.postgres.CompanyExists"

	var exists bool
	err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1)`, companyID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

func (db *Postgres) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	const op = "storage.postgres.CreateUser"

	skills := user.Profile.Skills
	if skills == nil {
		skills = []string{}
	}
	var companyID *string
	if user.CompanyID != "" {
		companyID = &user.CompanyID
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, role, company_id,
			full_name, phone_number, bio, skills, resume_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING ` + userColumns
	created, err := scanUser(db.Pool.QueryRow(ctx, query,
		uuid.NewString(),
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		companyID,
		user.Profile.FullName,
		user.Profile.PhoneNumber,
		user.Profile.Bio,
		skills,
		user.Profile.ResumeURL,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

func (db *Postgres) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	const op = "storage.postgres.UserByEmail"

	user, err := scanUser(db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (db *Postgres) UserByID(ctx context.Context, userID string) (*model.User, error) {
	const op = "storage.postgres.UserByID"

	user, err := scanUser(db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (db *Postgres) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	const op = "storage.postgres.UpdatePasswordHash"

	tag, err := db.Pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

func (db *Postgres) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	const op = "storage.postgres.UpdateProfile"

	query := `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
			phone_number = COALESCE($3, phone_number),
			bio = COALESCE($4, bio),
			skills = COALESCE($5::text[], skills),
			resume_url = COALESCE($6, resume_url),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	user, err := scanUser(db.Pool.QueryRow(ctx, query,
		userID,
		update.FullName,
		update.PhoneNumber,
		update.Bio,
		update.Skills,
		update.ResumeURL,
	))
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (db *Postgres) DeleteUser(ctx context.Context, userID string) error {
	const op = "storage.postgres.DeleteUser"

	tag, err := db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// UpsertToken overwrites the user's record in place or creates it.
func (db *Postgres) UpsertToken(ctx context.Context, record model.TokenRecord) error {
	const op = "storage.postgres.UpsertToken"

	query := `
		INSERT INTO tokens (user_id, access_token, refresh_token, issued_at, expires_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := db.Pool.Exec(ctx, query,
		record.UserID,
		record.AccessToken,
		record.RefreshToken,
		record.IssuedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func scanToken(row pgx.Row) (*model.TokenRecord, error) {
	var rec model.TokenRecord
	err := row.Scan(
		&rec.UserID,
		&rec.AccessToken,
		&rec.RefreshToken,
		&rec.IssuedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

const tokenColumns = `user_id, COALESCE(access_token, ''), refresh_token, issued_at, expires_at`

func (db *Postgres) TokenByRefresh(ctx context.Context, refreshToken string) (*model.TokenRecord, error) {
	const op = "storage.postgres.TokenByRefresh"

	rec, err := scanToken(db.Pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE refresh_token = $1`, refreshToken))
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (db *Postgres) TokenByUserID(ctx context.Context, userID string) (*model.TokenRecord, error) {
	const op = "storage.postgres.TokenByUserID"

	rec, err := scanToken(db.Pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE user_id = $1`, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// UpdateAccessToken sets access_token only. The record must still hold the
// refresh token it was read with.
func (db *Postgres) UpdateAccessToken(ctx context.Context, record model.TokenRecord, accessToken string) error {
	const op = "storage.postgres.UpdateAccessToken"

	tag, err := db.Pool.Exec(ctx, `
		UPDATE tokens
		SET access_token = $3
		WHERE user_id = $1 AND refresh_token = $2
	`, record.UserID, record.RefreshToken, accessToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	return nil
}

func (db *Postgres) DeleteTokenByRefresh(ctx context.Context, refreshToken string) error {
	const op = "storage.postgres.DeleteTokenByRefresh"

	tag, err := db.Pool.Exec(ctx, `DELETE FROM tokens WHERE refresh_token = $1`, refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	return nil
}

func (db *Postgres) DeleteTokenByUserID(ctx context.Context, userID string) error {
	const op = "storage.postgres.DeleteTokenByUserID"

	if _, err := db.Pool.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (db *Postgres) AppendLogin(ctx context.Context, event model.LoginEvent) error {
	const op = "storage.postgres.AppendLogin"

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO login_history (id, user_id, login_at, ip_address)
		VALUES ($1, $2, $3, $4)
	`, id, event.UserID, event.LoginAt, event.IPAddress)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (db *Postgres) ListLogins(ctx context.Context, userID string, limit int) ([]model.LoginEvent, error) {
	const op = "storage.postgres.ListLogins"

	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, login_at, ip_address
		FROM login_history
		WHERE user_id = $1
		ORDER BY login_at DESC
		LIMIT NULLIF($2, 0)
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	events := make([]model.LoginEvent, 0)
	for rows.Next() {
		var e model.LoginEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.LoginAt, &e.IPAddress); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}
