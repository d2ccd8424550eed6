package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

// fakeDates запоминает вызов и возвращает заданную ошибку
type fakeDates struct {
	err      error
	viewer   *auth.Identity
	id       uuid.UUID
	response string
	as       string
	calendar string
	view     *service.CustomDateView
}

func (f *fakeDates) record(viewer *auth.Identity, id uuid.UUID) {
	f.viewer = viewer
	f.id = id
}

func (f *fakeDates) RequestCustomDate(_ context.Context, viewer *auth.Identity, _ service.RequestCustomDateInput) (*model.CustomDate, error) {
	f.record(viewer, uuid.Nil)
	if f.err != nil {
		return nil, f.err
	}
	return &model.CustomDate{ID: uuid.New(), Status: model.CustomDateStatusRequested}, nil
}

func (f *fakeDates) ListCustomDates(_ context.Context, viewer *auth.Identity, as string) ([]*model.CustomDate, error) {
	f.record(viewer, uuid.Nil)
	f.as = as
	return []*model.CustomDate{}, f.err
}

func (f *fakeDates) GetCustomDate(_ context.Context, viewer *auth.Identity, id uuid.UUID) (*service.CustomDateView, error) {
	f.record(viewer, id)
	if f.err != nil {
		return nil, f.err
	}
	if f.view != nil {
		return f.view, nil
	}
	return &service.CustomDateView{CustomDate: &model.CustomDate{ID: id}}, nil
}

func (f *fakeDates) RespondToCustomDate(_ context.Context, viewer *auth.Identity, id uuid.UUID, response string) (*model.CustomDate, error) {
	f.record(viewer, id)
	f.response = response
	if f.err != nil {
		return nil, f.err
	}
	return &model.CustomDate{ID: id, Status: model.CustomDateStatus(response)}, nil
}

func (f *fakeDates) CancelCustomDate(_ context.Context, viewer *auth.Identity, id uuid.UUID) (*model.CustomDate, error) {
	f.record(viewer, id)
	return &model.CustomDate{ID: id}, f.err
}

func (f *fakeDates) SuggestCustomDate(_ context.Context, viewer *auth.Identity, id uuid.UUID, _ service.StopsInput) (*model.CustomDateSuggestion, error) {
	f.record(viewer, id)
	return &model.CustomDateSuggestion{CustomDateID: id}, f.err
}

func (f *fakeDates) MakeChangesOnSuggestion(_ context.Context, viewer *auth.Identity, id uuid.UUID, _ service.StopsInput) (*model.CustomDateSuggestion, error) {
	f.record(viewer, id)
	return &model.CustomDateSuggestion{CustomDateID: id}, f.err
}

func (f *fakeDates) RequestChangesOnCustomDateSuggestion(_ context.Context, viewer *auth.Identity, id uuid.UUID, _ service.RequestChangesInput) (*model.CustomDateSuggestion, error) {
	f.record(viewer, id)
	return &model.CustomDateSuggestion{ID: id}, f.err
}

func (f *fakeDates) AcceptCustomDateSuggestion(_ context.Context, viewer *auth.Identity, id uuid.UUID, _ service.AcceptSuggestionInput) (*model.CustomDateSuggestion, error) {
	f.record(viewer, id)
	return &model.CustomDateSuggestion{CustomDateID: id}, f.err
}

func (f *fakeDates) RequestRefundOnCustomDate(_ context.Context, viewer *auth.Identity, id uuid.UUID, _ service.RefundRequestInput) (*model.CustomDateRefund, error) {
	f.record(viewer, id)
	return &model.CustomDateRefund{CustomDateID: id}, f.err
}

func (f *fakeDates) RespondToRequestedRefund(_ context.Context, viewer *auth.Identity, id uuid.UUID, _ service.RefundResponseInput) (*model.CustomDateRefund, error) {
	f.record(viewer, id)
	return &model.CustomDateRefund{ID: id}, f.err
}

func (f *fakeDates) ListRequestedRefunds(_ context.Context, viewer *auth.Identity) ([]*model.CustomDateRefund, error) {
	f.record(viewer, uuid.Nil)
	return nil, f.err
}

func (f *fakeDates) PaymentMethodRemovable(_ context.Context, viewer *auth.Identity) (bool, error) {
	f.record(viewer, uuid.Nil)
	return f.err == nil, f.err
}

func (f *fakeDates) SendCustomDateMessage(_ context.Context, viewer *auth.Identity, id uuid.UUID, input service.MessageInput) (*model.CustomDateMessage, error) {
	f.record(viewer, id)
	return &model.CustomDateMessage{CustomDateID: id, Text: input.Text}, f.err
}

func (f *fakeDates) ListCustomDateMessages(_ context.Context, viewer *auth.Identity, id uuid.UUID) ([]*model.CustomDateMessage, error) {
	f.record(viewer, id)
	return nil, f.err
}

func (f *fakeDates) GenerateItinerary(_ context.Context, viewer *auth.Identity, _ service.ItineraryInput) (string, error) {
	f.record(viewer, uuid.Nil)
	return f.calendar, f.err
}

type fakeEvents struct {
	events []notify.Event
	viewer uuid.UUID
	topics []string
}

func (f *fakeEvents) Subscribe(_ context.Context, viewerID uuid.UUID, topics ...string) (<-chan notify.Event, error) {
	f.viewer = viewerID
	f.topics = topics

	ch := make(chan notify.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

type pingerFunc func(ctx context.Context) error

func (p pingerFunc) Ping(ctx context.Context) error { return p(ctx) }

type testServer struct {
	echo   *echo.Echo
	dates  *fakeDates
	events *fakeEvents
	tokens *auth.Tokens
}

func newTestServer(t *testing.T, health ...Pinger) *testServer {
	t.Helper()

	tokens := auth.NewTokens(testSecret)
	dates := &fakeDates{}
	events := &fakeEvents{}

	e := NewEcho(tokens, zap.NewNop())
	NewController(dates, events, zap.NewNop(), health...).Register(e)

	return &testServer{echo: e, dates: dates, events: events, tokens: tokens}
}

func (s *testServer) token(t *testing.T, userID uuid.UUID, role model.Role) string {
	t.Helper()
	token, err := s.tokens.Issue(userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not logged in", service.ErrNotLoggedIn, http.StatusUnauthorized, "you must be logged in"},
		{"not allowed", service.ErrNotAllowed, http.StatusForbidden, "you are not allowed to do this"},
		{"not found", service.ErrNotFound, http.StatusNotFound, "custom date not found"},
		{"expired", service.ErrRequestExpired, http.StatusGone, "request has expired"},
		{"conflict", &service.Error{Kind: service.KindStateConflict, Message: "cannot cancel"}, http.StatusConflict, "cannot cancel"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.dates.err = tt.err

			rec := s.do(http.MethodGet, "/api/custom-dates/"+uuid.NewString(), "", "")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec).Message)
		})
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	s := newTestServer(t)
	s.dates.err = &service.Error{
		Kind:    service.KindValidation,
		Message: "invalid input",
		Fields:  []service.FieldError{{Path: "stops.1.location.id", Message: "Must change location"}},
	}

	rec := s.do(http.MethodPost, "/api/custom-dates/"+uuid.NewString()+"/suggestions/changes",
		`{"stops":[{"content":"a","location":{"id":"`+uuid.NewString()+`"}}]}`, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, []service.FieldError{{Path: "stops.1.location.id", Message: "Must change location"}}, body.Fields)
}

func TestInvalidIDAndBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/custom-dates/not-a-uuid", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", decodeError(t, rec).Fields[0].Path)

	rec = s.do(http.MethodPost, "/api/custom-dates", `{"numStops": "three"`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decodeError(t, rec).Message)
}

func TestGetCustomDateUsesCamelCaseKeys(t *testing.T) {
	s := newTestServer(t)
	payout := int64(3600)
	s.dates.view = &service.CustomDateView{
		CustomDate: &model.CustomDate{
			ID:           uuid.New(),
			BeginsAt:     time.Date(2030, 1, 1, 19, 0, 0, 0, time.UTC),
			NumStops:     3,
			PricePerStop: 1500,
			Status:       model.CustomDateStatusAccepted,
		},
		Suggestion: &model.CustomDateSuggestion{
			ID:    uuid.New(),
			Stops: []*model.SuggestionStop{{ID: uuid.New(), LocationID: uuid.New()}},
		},
		ChangesCanBeRequested: true,
		TastemakerPayout:      &payout,
	}

	rec := s.do(http.MethodGet, "/api/custom-dates/"+s.dates.view.ID.String(), "", s.token(t, uuid.New(), model.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, key := range []string{"beginsAt", "numStops", "pricePerStop", "lastMessageSentAt", "changesCanBeRequested", "tastemakerPayout"} {
		assert.Contains(t, body, key)
	}
	for key := range body {
		assert.NotContains(t, key, "_")
	}

	suggestion := body["suggestion"].(map[string]any)
	assert.Contains(t, suggestion, "revisionNumber")
	stop := suggestion["stops"].([]any)[0].(map[string]any)
	assert.Contains(t, stop, "locationId")
}

func TestBearerTokenReachesService(t *testing.T) {
	s := newTestServer(t)
	userID := uuid.New()
	dateID := uuid.New()

	rec := s.do(http.MethodPost, "/api/custom-dates/"+dateID.String()+"/respond",
		`{"response":"accepted"}`, s.token(t, userID, model.RoleUser))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.dates.viewer)
	assert.Equal(t, userID, s.dates.viewer.UserID)
	assert.Equal(t, dateID, s.dates.id)
	assert.Equal(t, "accepted", s.dates.response)
}

func TestInvalidTokenRejected(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/custom-dates", "", "garbage")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decodeError(t, rec).Message)
	assert.Nil(t, s.dates.viewer)
}

func TestListPassesRole(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/custom-dates?as=tastemaker", "", s.token(t, uuid.New(), model.RoleUser))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tastemaker", s.dates.as)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateReturnsCreated(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/custom-dates",
		`{"tastemakerUsername":"bea","beginsAt":"2030-01-01T19:00:00Z","numStops":3}`,
		s.token(t, uuid.New(), model.RoleUser))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestItineraryIsCalendarAttachment(t *testing.T) {
	s := newTestServer(t)
	s.dates.calendar = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"

	rec := s.do(http.MethodPost, "/api/itinerary/calendar",
		`{"start":"2030-01-01T19:00:00Z","stops":[{"location":{"id":"`+uuid.NewString()+`"}}],"organizer":{"email":"a@example.com"}}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "itinerary.ics")
	assert.Equal(t, s.dates.calendar, rec.Body.String())
	assert.Nil(t, s.dates.viewer)
}

func TestPaymentMethodRemovable(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/payment-methods/removable", "", s.token(t, uuid.New(), model.RoleUser))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removable":true}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, pingerFunc(func(context.Context) error { return errors.New("no db") }))
	rec = down.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamEvents(t *testing.T) {
	s := newTestServer(t)
	userID := uuid.New()
	s.events.events = []notify.Event{
		{Type: notify.EventNewMessage, CustomDateID: uuid.New(), RequestorID: userID},
	}

	rec := s.do(http.MethodGet, "/api/events?topics=custom_date.message", "", s.token(t, userID, model.RoleUser))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, userID, s.events.viewer)
	assert.Equal(t, []string{notify.TopicMessage}, s.events.topics)
	assert.Contains(t, rec.Body.String(), "event: NewMessage\ndata: {")
}

func TestStreamEventsRequiresLoginAndKnownTopics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/events", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/events?topics=bogus", "", s.token(t, uuid.New(), model.RoleUser))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "topics", decodeError(t, rec).Fields[0].Path)
}
