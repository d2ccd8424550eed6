package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store всё хранилище custom dates. Методы внутри WithTx выполняются
// в одной транзакции.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListAdmins(ctx context.Context) ([]*model.User, error)
	GetTastemakerByID(ctx context.Context, id uuid.UUID) (*model.Tastemaker, error)
	GetTastemakerByUserID(ctx context.Context, userID uuid.UUID) (*model.Tastemaker, error)

	GetCitiesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.City, error)
	GetTagsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Tag, error)
	GetLocationsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Location, error)

	CreateCustomDate(ctx context.Context, date *model.CustomDate) error
	GetCustomDateByID(ctx context.Context, id uuid.UUID) (*model.CustomDate, error)
	UpdateCustomDate(ctx context.Context, date *model.CustomDate) error
	ListCustomDatesByRequestor(ctx context.Context, requestorID uuid.UUID) ([]*model.CustomDate, error)
	ListCustomDatesByTastemaker(ctx context.Context, tastemakerID uuid.UUID) ([]*model.CustomDate, error)
	HasUnsettledCustomDates(ctx context.Context, requestorID uuid.UUID) (bool, error)

	CreateSuggestion(ctx context.Context, suggestion *model.CustomDateSuggestion) error
	GetSuggestionByID(ctx context.Context, id uuid.UUID) (*model.CustomDateSuggestion, error)
	GetLatestSuggestion(ctx context.Context, customDateID uuid.UUID) (*model.CustomDateSuggestion, error)
	CountSuggestions(ctx context.Context, customDateID uuid.UUID) (int, error)
	UpdateSuggestionStatus(ctx context.Context, id uuid.UUID, status model.SuggestionStatus) error
	CreateStopRequestedChange(ctx context.Context, change *model.StopRequestedChange) error

	CreateRefund(ctx context.Context, refund *model.CustomDateRefund) error
	GetRefundByID(ctx context.Context, id uuid.UUID) (*model.CustomDateRefund, error)
	GetRefundByCustomDateID(ctx context.Context, customDateID uuid.UUID) (*model.CustomDateRefund, error)
	UpdateRefundStatus(ctx context.Context, id uuid.UUID, status model.RefundStatus) error
	ListRefundsByStatus(ctx context.Context, status model.RefundStatus) ([]*model.CustomDateRefund, error)

	CreateMessage(ctx context.Context, message *model.CustomDateMessage) error
	ListMessages(ctx context.Context, customDateID uuid.UUID) ([]*model.CustomDateMessage, error)
}

// PgStore реализация Store поверх pgx
type PgStore struct {
	pool *pgxpool.Pool // nil внутри транзакции

	*UserRepository
	*CatalogRepository
	*CustomDateRepository
	*SuggestionRepository
	*RefundRepository
	*MessageRepository
}

// NewPgStore создаёт хранилище поверх пула соединений
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	store := newPgStore(pool)
	store.pool = pool
	return store
}

func newPgStore(db base.DBTX) *PgStore {
	return &PgStore{
		UserRepository:       NewUserRepository(db),
		CatalogRepository:    NewCatalogRepository(db),
		CustomDateRepository: NewCustomDateRepository(db),
		SuggestionRepository: NewSuggestionRepository(db),
		RefundRepository:     NewRefundRepository(db),
		MessageRepository:    NewMessageRepository(db),
	}
}

// WithTx выполняет fn в транзакции. Вложенный вызов переиспользует текущую.
func (s *PgStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newPgStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
