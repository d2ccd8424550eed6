// Package payout переводит заработок tastemaker на его Stripe Connect аккаунт.
package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/pricing"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// ErrNoConnectedAccount у tastemaker не подключён Stripe
var ErrNoConnectedAccount = errors.New("tastemaker has no connected stripe account")

// Transfer результат выплаты
type Transfer struct {
	ID          string
	AmountCents int64
}

// StripePayouts выплаты через Stripe Transfers
type StripePayouts struct {
	api    *client.API
	logger *zap.Logger
}

func NewStripePayouts(secretKey string, logger *zap.Logger) *StripePayouts {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripePayouts{api: api, logger: logger}
}

// Pay переводит tastemaker 80% стоимости без комиссии Stripe.
// Ключ идемпотентности не даёт заплатить дважды при повторе задачи.
func (p *StripePayouts) Pay(ctx context.Context, date *model.CustomDate, tm *model.Tastemaker) (*Transfer, error) {
	if tm.StripeAccountID == "" {
		return nil, ErrNoConnectedAccount
	}

	amount := pricing.TastemakerPayoutCents(date.PricePerStop, date.NumStops)

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Destination:   stripe.String(tm.StripeAccountID),
		TransferGroup: stripe.String("custom-date-" + date.ID.String()),
	}
	params.Context = ctx
	params.SetIdempotencyKey("payout-" + date.ID.String())
	params.AddMetadata("custom_date_id", date.ID.String())

	transfer, err := p.api.Transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe transfer: %w", err)
	}

	p.logger.Info("Tastemaker paid",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("transfer_id", transfer.ID),
		zap.Int64("amount", amount),
	)

	return &Transfer{ID: transfer.ID, AmountCents: amount}, nil
}

// LogPayouts заглушка, когда STRIPE_SECRET_KEY не задан
type LogPayouts struct {
	logger *zap.Logger
}

func NewLogPayouts(logger *zap.Logger) *LogPayouts {
	return &LogPayouts{logger: logger}
}

func (p *LogPayouts) Pay(_ context.Context, date *model.CustomDate, _ *model.Tastemaker) (*Transfer, error) {
	amount := pricing.TastemakerPayoutCents(date.PricePerStop, date.NumStops)
	p.logger.Info("Payout skipped, stripe not configured",
		zap.String("custom_date_id", date.ID.String()),
		zap.Int64("amount", amount),
	)
	return &Transfer{AmountCents: amount}, nil
}
