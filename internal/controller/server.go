package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// CustomDates операции над custom dates, которые вызывает HTTP-слой
type CustomDates interface {
	RequestCustomDate(ctx context.Context, viewer *auth.Identity, input service.RequestCustomDateInput) (*model.CustomDate, error)
	ListCustomDates(ctx context.Context, viewer *auth.Identity, as string) ([]*model.CustomDate, error)
	GetCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID) (*service.CustomDateView, error)
	RespondToCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, response string) (*model.CustomDate, error)
	CancelCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID) (*model.CustomDate, error)
	SuggestCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input service.StopsInput) (*model.CustomDateSuggestion, error)
	MakeChangesOnSuggestion(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input service.StopsInput) (*model.CustomDateSuggestion, error)
	RequestChangesOnCustomDateSuggestion(ctx context.Context, viewer *auth.Identity, suggestionID uuid.UUID, input service.RequestChangesInput) (*model.CustomDateSuggestion, error)
	AcceptCustomDateSuggestion(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input service.AcceptSuggestionInput) (*model.CustomDateSuggestion, error)
	RequestRefundOnCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input service.RefundRequestInput) (*model.CustomDateRefund, error)
	RespondToRequestedRefund(ctx context.Context, viewer *auth.Identity, refundID uuid.UUID, input service.RefundResponseInput) (*model.CustomDateRefund, error)
	ListRequestedRefunds(ctx context.Context, viewer *auth.Identity) ([]*model.CustomDateRefund, error)
	PaymentMethodRemovable(ctx context.Context, viewer *auth.Identity) (bool, error)
	SendCustomDateMessage(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, input service.MessageInput) (*model.CustomDateMessage, error)
	ListCustomDateMessages(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID) ([]*model.CustomDateMessage, error)
	GenerateItinerary(ctx context.Context, viewer *auth.Identity, input service.ItineraryInput) (string, error)
}

// Events источник событий реального времени
type Events interface {
	Subscribe(ctx context.Context, viewerID uuid.UUID, topics ...string) (<-chan notify.Event, error)
}

// Pinger проверка зависимостей для /healthz
type Pinger interface {
	Ping(ctx context.Context) error
}

type Controller struct {
	dates     CustomDates
	events    Events
	health    []Pinger
	logger    *zap.Logger
	heartbeat time.Duration
}

func NewController(dates CustomDates, events Events, logger *zap.Logger, health ...Pinger) *Controller {
	return &Controller{
		dates:     dates,
		events:    events,
		health:    health,
		logger:    logger,
		heartbeat: 25 * time.Second,
	}
}

// NewEcho создаёт сервер с общими middleware и обработчиком ошибок
func NewEcho(tokens *auth.Tokens, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			if v.Status >= http.StatusInternalServerError {
				logger.Error("Request failed", fields...)
			} else {
				logger.Debug("Request handled", fields...)
			}
			return nil
		},
	}))
	e.Use(tokens.Middleware())

	return e
}

// Register регистрирует маршруты
func (ctrl *Controller) Register(e *echo.Echo) {
	e.GET("/healthz", ctrl.Health)

	api := e.Group("/api")

	dates := api.Group("/custom-dates")
	dates.POST("", ctrl.RequestCustomDate)
	dates.GET("", ctrl.ListCustomDates)
	dates.GET("/:id", ctrl.GetCustomDate)
	dates.POST("/:id/respond", ctrl.RespondToCustomDate)
	dates.POST("/:id/cancel", ctrl.CancelCustomDate)
	dates.POST("/:id/suggestions", ctrl.SuggestCustomDate)
	dates.POST("/:id/suggestions/changes", ctrl.MakeChangesOnSuggestion)
	dates.POST("/:id/accept", ctrl.AcceptCustomDateSuggestion)
	dates.POST("/:id/refund", ctrl.RequestRefundOnCustomDate)
	dates.GET("/:id/messages", ctrl.ListCustomDateMessages)
	dates.POST("/:id/messages", ctrl.SendCustomDateMessage)

	api.POST("/suggestions/:id/request-changes", ctrl.RequestChangesOnCustomDateSuggestion)

	api.GET("/refunds", ctrl.ListRequestedRefunds)
	api.POST("/refunds/:id/respond", ctrl.RespondToRequestedRefund)

	api.GET("/payment-methods/removable", ctrl.PaymentMethodRemovable)
	api.POST("/itinerary/calendar", ctrl.GenerateItinerary)
	api.GET("/events", ctrl.StreamEvents)
}

func (ctrl *Controller) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	for _, p := range ctrl.health {
		if err := p.Ping(ctx); err != nil {
			ctrl.logger.Warn("Health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
