package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Role           Role      `json:"role"`
	TelegramChatID *int64    `json:"-"` // nil если пользователь не привязал Telegram
	CreatedAt      time.Time `json:"createdAt"`
}

// FullName возвращает имя для писем и календаря
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Tastemaker профиль пользователя, который собирает свидания на заказ
type Tastemaker struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"userId"`
	PricePerStop    int64     `json:"pricePerStop"` // в центах
	IsSetUp         bool      `json:"isSetUp"`
	StripeAccountID string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`

	User *User `json:"user,omitempty"`
}
