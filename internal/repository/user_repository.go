package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/repository/base"
	"github.com/google/uuid"
)

const userColumns = `id, username, email, first_name, last_name, role, telegram_chat_id, created_at`

type UserRepository struct {
	db base.DBTX
}

func NewUserRepository(db base.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.TelegramChatID,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID получает пользователя по ID
func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

// GetUserByUsername получает пользователя по username (без учёта регистра)
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower($1)`

	user, err := scanUser(r.db.QueryRow(ctx, query, username))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

// ListAdmins получает всех администраторов
func (r *UserRepository) ListAdmins(ctx context.Context) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

const tastemakerColumns = `id, user_id, price_per_stop, is_set_up, stripe_account_id, created_at`

func scanTastemaker(row rowScanner) (*model.Tastemaker, error) {
	var tm model.Tastemaker
	err := row.Scan(
		&tm.ID,
		&tm.UserID,
		&tm.PricePerStop,
		&tm.IsSetUp,
		&tm.StripeAccountID,
		&tm.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

// GetTastemakerByID получает профиль tastemaker по ID
func (r *UserRepository) GetTastemakerByID(ctx context.Context, id uuid.UUID) (*model.Tastemaker, error) {
	query := `SELECT ` + tastemakerColumns + ` FROM tastemakers WHERE id = $1`

	tm, err := scanTastemaker(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tastemaker by id: %w", err)
	}
	return tm, nil
}

// GetTastemakerByUserID получает профиль tastemaker по ID пользователя
func (r *UserRepository) GetTastemakerByUserID(ctx context.Context, userID uuid.UUID) (*model.Tastemaker, error) {
	query := `SELECT ` + tastemakerColumns + ` FROM tastemakers WHERE user_id = $1`

	tm, err := scanTastemaker(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tastemaker by user id: %w", err)
	}
	return tm, nil
}
