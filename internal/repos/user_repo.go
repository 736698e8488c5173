package repos

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"openmarket/internal/domain"
)

type UserRepo struct{ db *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) ByID(id int64) (domain.User, error) {
	var u domain.User
	err := r.db.Get(&u, `
		SELECT id, email, name, password_hash, type, COALESCE(membership_class,'') AS membership_class
		FROM users WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}
