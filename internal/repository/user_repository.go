package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/utils"
)

// UserRepo provides data access to the `users` table. Beyond account
// management it serves as the user directory for the reservation core:
// buyer names for notification text are looked up here.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

const userColumns = `id, user_name, email, password_hash, role, is_active, created_at, updated_at`

// Create inserts a user and returns its ID. The password is hashed
// with bcrypt before it touches the database.
func (r *UserRepo) Create(ctx context.Context, userName, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (user_name, email, password_hash, role) VALUES (?,?,?,?)",
		strings.TrimSpace(userName), email, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.UserName, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// UserName returns just the display name for a user id. It backs the
// notification text and tolerates missing users by returning the empty
// string with sql.ErrNoRows.
func (r *UserRepo) UserName(ctx context.Context, id uint64) (string, error) {
	var name string
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_name FROM users WHERE id=? LIMIT 1", id).Scan(&name)
	return name, err
}
