package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/concierge/internal/analytics"
	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/jobs"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/payout"
	"github.com/Freeeeeet/concierge/internal/pricing"
	"github.com/Freeeeeet/concierge/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minLeadTime       = 36 * time.Hour
	acceptanceWindow  = 24 * time.Hour
	payoutDelay       = 48 * time.Hour
	refundWindow      = 48 * time.Hour
	jobMaxAttempts    = 10
	guestMaxAttempts  = 3
	jobBackoffBase    = time.Second
	itineraryBackoff  = 1000 * time.Millisecond
	itineraryFilename = "itinerary.ics"
)

// Scheduler отложенные задачи по custom date
type Scheduler interface {
	Enqueue(ctx context.Context, name string, payload jobs.Payload, opts jobs.Options) (*model.Job, error)
	FindPending(ctx context.Context, name string, customDateID uuid.UUID) (*model.Job, error)
	Cancel(ctx context.Context, job *model.Job) error
}

// Notifier письма, события реального времени и сообщения в Telegram
type Notifier interface {
	SendEmail(ctx context.Context, email notify.Email) error
	Publish(ctx context.Context, topic string, event notify.Event) error
	DirectMessage(ctx context.Context, user *model.User, text string) error
}

type Tracker interface {
	Track(distinctID, event string, properties map[string]any)
}

type Payouts interface {
	Pay(ctx context.Context, date *model.CustomDate, tm *model.Tastemaker) (*payout.Transfer, error)
}

type Options struct {
	AdminEmail string
	AppURL     string
}

// CustomDateService переговоры по custom date: запрос, ответ tastemaker,
// ревизии маршрута, принятие, возврат средств и выплата tastemaker
type CustomDateService struct {
	store     repository.Store
	scheduler Scheduler
	notifier  Notifier
	tracker   Tracker
	payouts   Payouts
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

func NewCustomDateService(
	store repository.Store,
	scheduler Scheduler,
	notifier Notifier,
	tracker Tracker,
	payouts Payouts,
	opts Options,
	logger *zap.Logger,
) *CustomDateService {
	return &CustomDateService{
		store:     store,
		scheduler: scheduler,
		notifier:  notifier,
		tracker:   tracker,
		payouts:   payouts,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// internal логирует причину и возвращает обезличенную ошибку "unable to ..."
func (s *CustomDateService) internal(viewer *auth.Identity, action string, err error) error {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	fields := []zap.Field{zap.String("action", action), zap.Error(err)}
	if viewer != nil {
		fields = append(fields, zap.String("user_id", viewer.UserID.String()))
	}
	s.logger.Error("Custom date operation failed", fields...)

	return &Error{Kind: KindInternal, Message: "unable to " + action, cause: err}
}

func requireLogin(viewer *auth.Identity) error {
	if viewer == nil {
		return ErrNotLoggedIn
	}
	return nil
}

// loadCustomDate custom date с участниками
func (s *CustomDateService) loadCustomDate(ctx context.Context, store repository.Store, id uuid.UUID) (*model.CustomDate, error) {
	date, err := store.GetCustomDateByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if date == nil {
		return nil, ErrNotFound
	}

	date.Requestor, err = store.GetUserByID(ctx, date.RequestorID)
	if err != nil {
		return nil, fmt.Errorf("get requestor: %w", err)
	}

	date.Tastemaker, err = store.GetTastemakerByID(ctx, date.TastemakerID)
	if err != nil {
		return nil, fmt.Errorf("get tastemaker: %w", err)
	}
	if date.Tastemaker == nil {
		return nil, fmt.Errorf("tastemaker %s of custom date %s not found", date.TastemakerID, date.ID)
	}

	date.Tastemaker.User, err = store.GetUserByID(ctx, date.Tastemaker.UserID)
	if err != nil {
		return nil, fmt.Errorf("get tastemaker user: %w", err)
	}

	return date, nil
}

func isRequestor(viewer *auth.Identity, date *model.CustomDate) bool {
	return viewer != nil && viewer.UserID == date.RequestorID
}

func isTastemaker(viewer *auth.Identity, date *model.CustomDate) bool {
	return viewer != nil && date.Tastemaker != nil && viewer.UserID == date.Tastemaker.UserID
}

// RequestCustomDate заказчик просит tastemaker собрать свидание
func (s *CustomDateService) RequestCustomDate(ctx context.Context, viewer *auth.Identity, input RequestCustomDateInput) (*model.CustomDate, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := s.now()
	var fields []FieldError

	if input.PriceRangeMin != nil && input.PriceRangeMax != nil && *input.PriceRangeMin > *input.PriceRangeMax {
		fields = append(fields, fieldError("priceRangeMax", "Must be greater than or equal to the minimum"))
	}
	if input.BeginsAt.Before(now.Add(minLeadTime)) {
		fields = append(fields, fieldError("beginsAt", "Must be at least 36 hours from now"))
	}

	tmUser, err := s.store.GetUserByUsername(ctx, input.TastemakerUsername)
	if err != nil {
		return nil, s.internal(viewer, "request custom date", err)
	}

	var tm *model.Tastemaker
	switch {
	case tmUser == nil:
		fields = append(fields, fieldError("tastemakerUsername", "Tastemaker not found"))
	case tmUser.ID == viewer.UserID:
		fields = append(fields, fieldError("tastemakerUsername", "You cannot request a date from yourself"))
	default:
		tm, err = s.store.GetTastemakerByUserID(ctx, tmUser.ID)
		if err != nil {
			return nil, s.internal(viewer, "request custom date", err)
		}
		if tm == nil || !tm.IsSetUp {
			fields = append(fields, fieldError("tastemakerUsername", "Tastemaker is not accepting custom dates"))
		}
	}

	cities, err := s.store.GetCitiesByIDs(ctx, input.Cities)
	if err != nil {
		return nil, s.internal(viewer, "request custom date", err)
	}
	for i, id := range input.Cities {
		if cities[id] == nil {
			fields = append(fields, fieldError(fmt.Sprintf("cities.%d", i), "City not found"))
		}
	}

	tags, err := s.store.GetTagsByIDs(ctx, input.Tags)
	if err != nil {
		return nil, s.internal(viewer, "request custom date", err)
	}
	for i, id := range input.Tags {
		if tags[id] == nil {
			fields = append(fields, fieldError(fmt.Sprintf("tags.%d", i), "Tag not found"))
		}
	}

	if len(fields) > 0 {
		return nil, invalid(fields...)
	}

	requestor, err := s.store.GetUserByID(ctx, viewer.UserID)
	if err != nil {
		return nil, s.internal(viewer, "request custom date", err)
	}
	if requestor == nil {
		return nil, ErrNotLoggedIn
	}

	date := &model.CustomDate{
		RequestorID:   requestor.ID,
		TastemakerID:  tm.ID,
		BeginsAt:      input.BeginsAt,
		NumStops:      input.NumStops,
		PricePerStop:  tm.PricePerStop,
		PriceRangeMin: input.PriceRangeMin,
		PriceRangeMax: input.PriceRangeMax,
		Cost:          pricing.CustomDatePrice(tm.PricePerStop, input.NumStops),
		Notes:         input.Notes,
		Status:        model.CustomDateStatusRequested,
		CityIDs:       input.Cities,
		TagIDs:        input.Tags,
	}

	if err := s.store.CreateCustomDate(ctx, date); err != nil {
		return nil, s.internal(viewer, "request custom date", err)
	}

	date.Requestor = requestor
	tm.User = tmUser
	date.Tastemaker = tm

	s.logger.Info("Custom date requested",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("requestor_id", requestor.ID.String()),
		zap.String("tastemaker_id", tm.ID.String()),
		zap.Int64("cost", date.Cost),
	)

	s.enqueue(ctx, jobs.CheckAcceptance, jobs.Payload{CustomDateID: date.ID}, jobs.Options{
		Delay:       acceptanceWindow,
		MaxAttempts: jobMaxAttempts,
		BackoffBase: jobBackoffBase,
	})

	s.sendEmail(ctx, tmUser.Email, notify.TemplateNewRequest, s.mailData(date, tmUser))
	s.sendEmail(ctx, requestor.Email, notify.TemplateRequestConfirmation, s.mailData(date, requestor))
	s.publish(ctx, notify.TopicNewCustomDate, notify.EventNewCustomDate, date)
	s.directMessage(ctx, tmUser, fmt.Sprintf("New custom date request from %s for %s",
		requestor.FullName(), date.BeginsAt.Format("Jan 2, 3:04 PM")))

	s.tracker.Track(requestor.ID.String(), analytics.EventCustomDateRequested, map[string]any{
		"customDateId": date.ID.String(),
		"tastemakerId": tm.ID.String(),
		"numStops":     date.NumStops,
		"cost":         date.Cost,
	})

	return date, nil
}

// RespondToCustomDate tastemaker принимает или отклоняет запрос.
// После 24 часов запрос помечается истёкшим, а вызов возвращает ErrRequestExpired.
func (s *CustomDateService) RespondToCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID, response string) (*model.CustomDate, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}

	status, ok := model.ParseCustomDateStatus(response)
	if !ok || (status != model.CustomDateStatusAccepted && status != model.CustomDateStatusDeclined) {
		return nil, invalid(fieldError("response", "Must be one of: accepted, declined"))
	}

	date, err := s.loadCustomDate(ctx, s.store, customDateID)
	if err != nil {
		return nil, s.internal(viewer, "respond to custom date", err)
	}
	if !isTastemaker(viewer, date) {
		return nil, ErrNotAllowed
	}

	switch date.Status {
	case model.CustomDateStatusRequested:
	case model.CustomDateStatusExpired:
		return nil, ErrRequestExpired
	default:
		return nil, conflict("custom date has already been responded to")
	}

	now := s.now()

	if now.Sub(date.CreatedAt) > acceptanceWindow {
		date.Status = model.CustomDateStatusExpired
		date.Completed = true
		date.RespondedAt = &now
		if err := s.store.UpdateCustomDate(ctx, date); err != nil {
			return nil, s.internal(viewer, "respond to custom date", err)
		}

		s.logger.Info("Custom date expired on late response",
			zap.String("custom_date_id", date.ID.String()),
		)
		s.publish(ctx, notify.TopicStatus, notify.EventExpired, date)
		s.sendEmail(ctx, date.Requestor.Email, notify.TemplateExpired, s.mailData(date, date.Requestor))
		s.cancelJob(ctx, jobs.CheckAcceptance, date.ID)

		return nil, ErrRequestExpired
	}

	date.Status = status
	date.RespondedAt = &now
	date.LastMessageSentAt = now
	if err := s.store.UpdateCustomDate(ctx, date); err != nil {
		return nil, s.internal(viewer, "respond to custom date", err)
	}

	s.logger.Info("Custom date responded",
		zap.String("custom_date_id", date.ID.String()),
		zap.String("status", string(status)),
	)

	data := s.mailData(date, date.Requestor)
	data.Status = string(status)
	s.sendEmail(ctx, date.Requestor.Email, notify.TemplateResponse, data)

	eventType := notify.EventDeclined
	if status == model.CustomDateStatusAccepted {
		eventType = notify.EventAccepted
	}
	s.publish(ctx, notify.TopicStatus, eventType, date)
	s.cancelJob(ctx, jobs.CheckAcceptance, date.ID)

	if status == model.CustomDateStatusAccepted {
		s.enqueue(ctx, jobs.PayTastemaker, jobs.Payload{CustomDateID: date.ID}, jobs.Options{
			Delay:       payoutDelay,
			MaxAttempts: jobMaxAttempts,
			BackoffBase: jobBackoffBase,
		})
	}

	s.tracker.Track(viewer.UserID.String(), analytics.EventCustomDateResponded, map[string]any{
		"customDateId": date.ID.String(),
		"response":     string(status),
	})

	return date, nil
}

// CancelCustomDate заказчик отзывает запрос, пока tastemaker не ответил
func (s *CustomDateService) CancelCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID) (*model.CustomDate, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}

	date, err := s.loadCustomDate(ctx, s.store, customDateID)
	if err != nil {
		return nil, s.internal(viewer, "cancel custom date", err)
	}
	if !isRequestor(viewer, date) {
		return nil, ErrNotAllowed
	}
	if !date.IsRequested() {
		return nil, conflict("only pending requests can be cancelled")
	}

	now := s.now()
	date.Status = model.CustomDateStatusCancelled
	date.Completed = true
	date.LastMessageSentAt = now
	if err := s.store.UpdateCustomDate(ctx, date); err != nil {
		return nil, s.internal(viewer, "cancel custom date", err)
	}

	s.logger.Info("Custom date cancelled", zap.String("custom_date_id", date.ID.String()))

	s.cancelJob(ctx, jobs.CheckAcceptance, date.ID)
	s.sendEmail(ctx, date.Tastemaker.User.Email, notify.TemplateCancelled, s.mailData(date, date.Tastemaker.User))
	s.publish(ctx, notify.TopicStatus, notify.EventCancelled, date)
	s.tracker.Track(viewer.UserID.String(), analytics.EventCustomDateCancelled, map[string]any{
		"customDateId": date.ID.String(),
	})

	return date, nil
}

// CustomDateView custom date глазами конкретного участника
type CustomDateView struct {
	*model.CustomDate

	Suggestion             *model.CustomDateSuggestion `json:"suggestion,omitempty"`
	Revisions              int                         `json:"revisions"`
	Refund                 *model.CustomDateRefund     `json:"refund,omitempty"`
	ChangesCanBeRequested  bool                        `json:"changesCanBeRequested"`
	CanBeAccepted          bool                        `json:"canBeAccepted"`
	RefundCanBeRequested   bool                        `json:"refundCanBeRequested"`
	SuggestionCanBeRevised bool                        `json:"suggestionCanBeRevised"`
	TastemakerPayout       *int64                      `json:"tastemakerPayout,omitempty"` // только для tastemaker
}

// GetCustomDate доступен заказчику, tastemaker и администратору
func (s *CustomDateService) GetCustomDate(ctx context.Context, viewer *auth.Identity, customDateID uuid.UUID) (*CustomDateView, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}

	date, err := s.loadCustomDate(ctx, s.store, customDateID)
	if err != nil {
		return nil, s.internal(viewer, "get custom date", err)
	}
	if !isRequestor(viewer, date) && !isTastemaker(viewer, date) && !viewer.IsAdmin() {
		return nil, ErrNotAllowed
	}

	view, err := s.buildView(ctx, viewer, date)
	if err != nil {
		return nil, s.internal(viewer, "get custom date", err)
	}
	return view, nil
}

func (s *CustomDateService) buildView(ctx context.Context, viewer *auth.Identity, date *model.CustomDate) (*CustomDateView, error) {
	latest, err := s.store.GetLatestSuggestion(ctx, date.ID)
	if err != nil {
		return nil, err
	}
	revisions, err := s.store.CountSuggestions(ctx, date.ID)
	if err != nil {
		return nil, err
	}
	refund, err := s.store.GetRefundByCustomDateID(ctx, date.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	requestor := isRequestor(viewer, date)
	tastemaker := isTastemaker(viewer, date)

	view := &CustomDateView{
		CustomDate:             date,
		Suggestion:             latest,
		Revisions:              revisions,
		Refund:                 refund,
		ChangesCanBeRequested:  changesCanBeRequested(requestor, latest, revisions),
		CanBeAccepted:          canBeAccepted(requestor, latest),
		RefundCanBeRequested:   refundCanBeRequested(requestor, date, latest, now),
		SuggestionCanBeRevised: suggestionCanBeRevised(tastemaker, latest, revisions),
	}

	if tastemaker {
		amount := pricing.TastemakerPayoutCents(date.PricePerStop, date.NumStops)
		view.TastemakerPayout = &amount
	}

	return view, nil
}

// ListCustomDates входящие и исходящие запросы, последние активные сверху.
// as: "requestor", "tastemaker" или пусто для обоих списков.
func (s *CustomDateService) ListCustomDates(ctx context.Context, viewer *auth.Identity, as string) ([]*model.CustomDate, error) {
	if err := requireLogin(viewer); err != nil {
		return nil, err
	}
	if as != "" && as != "requestor" && as != "tastemaker" {
		return nil, invalid(fieldError("as", "Must be one of: requestor, tastemaker"))
	}

	var dates []*model.CustomDate

	if as == "" || as == "requestor" {
		requested, err := s.store.ListCustomDatesByRequestor(ctx, viewer.UserID)
		if err != nil {
			return nil, s.internal(viewer, "list custom dates", err)
		}
		dates = append(dates, requested...)
	}

	if as == "" || as == "tastemaker" {
		tm, err := s.store.GetTastemakerByUserID(ctx, viewer.UserID)
		if err != nil {
			return nil, s.internal(viewer, "list custom dates", err)
		}
		if tm != nil {
			received, err := s.store.ListCustomDatesByTastemaker(ctx, tm.ID)
			if err != nil {
				return nil, s.internal(viewer, "list custom dates", err)
			}
			dates = append(dates, received...)
		}
	}

	sortByLastMessage(dates)
	return dates, nil
}
