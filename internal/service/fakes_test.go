package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/jobs"
	"github.com/Freeeeeet/concierge/internal/model"
	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/payout"
	"github.com/Freeeeeet/concierge/internal/pricing"
	"github.com/Freeeeeet/concierge/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

// memStore хранилище в памяти. Хранит копии, WithTx откатывает изменения при ошибке.
type memStore struct {
	mu  sync.Mutex
	now func() time.Time

	users       map[uuid.UUID]*model.User
	tastemakers map[uuid.UUID]*model.Tastemaker
	cities      map[uuid.UUID]*model.City
	tags        map[uuid.UUID]*model.Tag
	locations   map[uuid.UUID]*model.Location
	dates       map[uuid.UUID]*model.CustomDate
	suggestions map[uuid.UUID]*model.CustomDateSuggestion
	changes     map[uuid.UUID]*model.StopRequestedChange // по stop id
	refunds     map[uuid.UUID]*model.CustomDateRefund
	messages    []*model.CustomDateMessage

	failCreateDate       error
	failCreateSuggestion error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:         now,
		users:       make(map[uuid.UUID]*model.User),
		tastemakers: make(map[uuid.UUID]*model.Tastemaker),
		cities:      make(map[uuid.UUID]*model.City),
		tags:        make(map[uuid.UUID]*model.Tag),
		locations:   make(map[uuid.UUID]*model.Location),
		dates:       make(map[uuid.UUID]*model.CustomDate),
		suggestions: make(map[uuid.UUID]*model.CustomDateSuggestion),
		changes:     make(map[uuid.UUID]*model.StopRequestedChange),
		refunds:     make(map[uuid.UUID]*model.CustomDateRefund),
	}
}

var _ repository.Store = (*memStore)(nil)

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) WithTx(_ context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	dates := copyMap(s.dates)
	suggestions := copyMap(s.suggestions)
	changes := copyMap(s.changes)
	refunds := copyMap(s.refunds)
	messages := append([]*model.CustomDateMessage(nil), s.messages...)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.dates, s.suggestions, s.changes, s.refunds, s.messages = dates, suggestions, changes, refunds, messages
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (s *memStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListAdmins(_ context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var admins []*model.User
	for _, u := range s.users {
		if u.IsAdmin() {
			c := *u
			admins = append(admins, &c)
		}
	}
	return admins, nil
}

func (s *memStore) GetTastemakerByID(_ context.Context, id uuid.UUID) (*model.Tastemaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tm, ok := s.tastemakers[id]; ok {
		c := *tm
		return &c, nil
	}
	return nil, nil
}

func (s *memStore) GetTastemakerByUserID(_ context.Context, userID uuid.UUID) (*model.Tastemaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tm := range s.tastemakers {
		if tm.UserID == userID {
			c := *tm
			return &c, nil
		}
	}
	return nil, nil
}

func pick[T any](m map[uuid.UUID]*T, ids []uuid.UUID) map[uuid.UUID]*T {
	out := make(map[uuid.UUID]*T)
	for _, id := range ids {
		if v, ok := m[id]; ok {
			out[id] = v
		}
	}
	return out
}

func (s *memStore) GetCitiesByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pick(s.cities, ids), nil
}

func (s *memStore) GetTagsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pick(s.tags, ids), nil
}

func (s *memStore) GetLocationsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pick(s.locations, ids), nil
}

func (s *memStore) CreateCustomDate(_ context.Context, date *model.CustomDate) error {
	if s.failCreateDate != nil {
		return s.failCreateDate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	date.ID = uuid.New()
	date.CreatedAt = now
	date.UpdatedAt = now
	date.LastMessageSentAt = now
	c := *date
	c.Requestor, c.Tastemaker = nil, nil
	s.dates[date.ID] = &c
	return nil
}

func (s *memStore) GetCustomDateByID(_ context.Context, id uuid.UUID) (*model.CustomDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dates[id]; ok {
		c := *d
		return &c, nil
	}
	return nil, nil
}

func (s *memStore) UpdateCustomDate(_ context.Context, date *model.CustomDate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.dates[date.ID]
	if !ok {
		return errors.New("custom date not found")
	}
	c := *stored
	c.Status = date.Status
	c.RespondedAt = date.RespondedAt
	c.LastMessageSentAt = date.LastMessageSentAt
	c.Completed = date.Completed
	c.TastemakerPaidAt = date.TastemakerPaidAt
	c.UpdatedAt = s.now()
	s.dates[date.ID] = &c
	return nil
}

func (s *memStore) listDates(match func(*model.CustomDate) bool) []*model.CustomDate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CustomDate
	for _, d := range s.dates {
		if match(d) {
			c := *d
			out = append(out, &c)
		}
	}
	sortByLastMessage(out)
	return out
}

func (s *memStore) ListCustomDatesByRequestor(_ context.Context, requestorID uuid.UUID) ([]*model.CustomDate, error) {
	return s.listDates(func(d *model.CustomDate) bool { return d.RequestorID == requestorID }), nil
}

func (s *memStore) ListCustomDatesByTastemaker(_ context.Context, tastemakerID uuid.UUID) ([]*model.CustomDate, error) {
	return s.listDates(func(d *model.CustomDate) bool { return d.TastemakerID == tastemakerID }), nil
}

func (s *memStore) HasUnsettledCustomDates(_ context.Context, requestorID uuid.UUID) (bool, error) {
	dates := s.listDates(func(d *model.CustomDate) bool {
		return d.RequestorID == requestorID && d.IsAccepted() && !d.Completed
	})
	return len(dates) > 0, nil
}

func (s *memStore) CreateSuggestion(_ context.Context, suggestion *model.CustomDateSuggestion) error {
	if s.failCreateSuggestion != nil {
		return s.failCreateSuggestion
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.suggestions {
		if existing.CustomDateID == suggestion.CustomDateID && existing.RevisionNumber == suggestion.RevisionNumber {
			return errors.New("duplicate revision")
		}
	}
	suggestion.ID = uuid.New()
	suggestion.CreatedAt = s.now()
	suggestion.UpdatedAt = suggestion.CreatedAt
	for _, stop := range suggestion.Stops {
		stop.ID = uuid.New()
		stop.SuggestionID = suggestion.ID
	}
	s.suggestions[suggestion.ID] = s.cloneSuggestion(suggestion)
	return nil
}

// cloneSuggestion копия с остановками и запрошенными изменениями; вызывать под mu
func (s *memStore) cloneSuggestion(src *model.CustomDateSuggestion) *model.CustomDateSuggestion {
	c := *src
	c.Stops = make([]*model.SuggestionStop, 0, len(src.Stops))
	for _, stop := range src.Stops {
		sc := *stop
		sc.RequestedChange = nil
		if change, ok := s.changes[stop.ID]; ok {
			cc := *change
			sc.RequestedChange = &cc
		}
		if loc, ok := s.locations[stop.LocationID]; ok {
			sc.Location = loc
		}
		c.Stops = append(c.Stops, &sc)
	}
	sort.Slice(c.Stops, func(i, j int) bool { return c.Stops[i].Order < c.Stops[j].Order })
	return &c
}

func (s *memStore) GetSuggestionByID(_ context.Context, id uuid.UUID) (*model.CustomDateSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sg, ok := s.suggestions[id]; ok {
		return s.cloneSuggestion(sg), nil
	}
	return nil, nil
}

func (s *memStore) suggestionsOf(customDateID uuid.UUID) []*model.CustomDateSuggestion {
	var out []*model.CustomDateSuggestion
	for _, sg := range s.suggestions {
		if sg.CustomDateID == customDateID {
			out = append(out, sg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevisionNumber < out[j].RevisionNumber })
	return out
}

func (s *memStore) GetLatestSuggestion(_ context.Context, customDateID uuid.UUID) (*model.CustomDateSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.suggestionsOf(customDateID)
	if len(all) == 0 {
		return nil, nil
	}
	return s.cloneSuggestion(all[len(all)-1]), nil
}

func (s *memStore) CountSuggestions(_ context.Context, customDateID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.suggestionsOf(customDateID)), nil
}

func (s *memStore) UpdateSuggestionStatus(_ context.Context, id uuid.UUID, status model.SuggestionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return errors.New("suggestion not found")
	}
	c := *sg
	c.Status = status
	s.suggestions[id] = &c
	return nil
}

func (s *memStore) CreateStopRequestedChange(_ context.Context, change *model.StopRequestedChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.changes[change.StopID]; ok {
		return errors.New("duplicate requested change")
	}
	change.ID = uuid.New()
	change.CreatedAt = s.now()
	c := *change
	s.changes[change.StopID] = &c
	return nil
}

func (s *memStore) CreateRefund(_ context.Context, refund *model.CustomDateRefund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.refunds {
		if r.CustomDateID == refund.CustomDateID {
			return errors.New("duplicate refund")
		}
	}
	refund.ID = uuid.New()
	refund.CreatedAt = s.now()
	refund.UpdatedAt = refund.CreatedAt
	c := *refund
	s.refunds[refund.ID] = &c
	return nil
}

func (s *memStore) GetRefundByID(_ context.Context, id uuid.UUID) (*model.CustomDateRefund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.refunds[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (s *memStore) GetRefundByCustomDateID(_ context.Context, customDateID uuid.UUID) (*model.CustomDateRefund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.refunds {
		if r.CustomDateID == customDateID {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpdateRefundStatus(_ context.Context, id uuid.UUID, status model.RefundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok {
		return errors.New("refund not found")
	}
	c := *r
	c.Status = status
	s.refunds[id] = &c
	return nil
}

func (s *memStore) ListRefundsByStatus(_ context.Context, status model.RefundStatus) ([]*model.CustomDateRefund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CustomDateRefund
	for _, r := range s.refunds {
		if r.Status == status {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) CreateMessage(_ context.Context, message *model.CustomDateMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	message.ID = uuid.New()
	message.CreatedAt = s.now()
	c := *message
	s.messages = append(s.messages, &c)
	return nil
}

func (s *memStore) ListMessages(_ context.Context, customDateID uuid.UUID) ([]*model.CustomDateMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CustomDateMessage
	for _, m := range s.messages {
		if m.CustomDateID == customDateID {
			c := *m
			out = append(out, &c)
		}
	}
	return out, nil
}

type enqueuedJob struct {
	name    string
	payload jobs.Payload
	opts    jobs.Options
	job     *model.Job
}

// fakeScheduler записывает постановку и отмену задач
type fakeScheduler struct {
	enqueued  []enqueuedJob
	cancelled []string // имена отменённых задач
	cancelErr error
}

func (f *fakeScheduler) Enqueue(_ context.Context, name string, payload jobs.Payload, opts jobs.Options) (*model.Job, error) {
	job := &model.Job{ID: uuid.New(), Name: name, CustomDateID: payload.CustomDateID, Status: model.JobStatusPending}
	f.enqueued = append(f.enqueued, enqueuedJob{name: name, payload: payload, opts: opts, job: job})
	return job, nil
}

func (f *fakeScheduler) FindPending(_ context.Context, name string, customDateID uuid.UUID) (*model.Job, error) {
	for i := len(f.enqueued) - 1; i >= 0; i-- {
		e := f.enqueued[i]
		if e.name == name && e.payload.CustomDateID == customDateID && e.job.IsPending() {
			return e.job, nil
		}
	}
	return nil, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, job *model.Job) error {
	if job == nil {
		return nil
	}
	if f.cancelErr != nil {
		return f.cancelErr
	}
	job.Status = model.JobStatusCancelled
	f.cancelled = append(f.cancelled, job.Name)
	return nil
}

func (f *fakeScheduler) byName(name string) []enqueuedJob {
	var out []enqueuedJob
	for _, e := range f.enqueued {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type publishedEvent struct {
	topic string
	event notify.Event
}

type fakeNotifier struct {
	emails []notify.Email
	events []publishedEvent
	dms    []string
	err    error
}

func (f *fakeNotifier) SendEmail(_ context.Context, email notify.Email) error {
	if f.err != nil {
		return f.err
	}
	f.emails = append(f.emails, email)
	return nil
}

func (f *fakeNotifier) Publish(_ context.Context, topic string, event notify.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{topic: topic, event: event})
	return nil
}

func (f *fakeNotifier) DirectMessage(_ context.Context, user *model.User, text string) error {
	if f.err != nil {
		return f.err
	}
	if user.TelegramChatID != nil {
		f.dms = append(f.dms, text)
	}
	return nil
}

func (f *fakeNotifier) templates() []string {
	out := make([]string, 0, len(f.emails))
	for _, e := range f.emails {
		out = append(out, e.Template)
	}
	return out
}

func (f *fakeNotifier) eventTypes() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.event.Type)
	}
	return out
}

type fakeTracker struct {
	events []string
}

func (f *fakeTracker) Track(_ string, event string, _ map[string]any) {
	f.events = append(f.events, event)
}

type fakePayouts struct {
	paid    []uuid.UUID
	amounts []int64
	err     error
}

func (f *fakePayouts) Pay(_ context.Context, date *model.CustomDate, _ *model.Tastemaker) (*payout.Transfer, error) {
	if f.err != nil {
		return nil, f.err
	}
	amount := pricing.TastemakerPayoutCents(date.PricePerStop, date.NumStops)
	f.paid = append(f.paid, date.ID)
	f.amounts = append(f.amounts, amount)
	return &payout.Transfer{ID: "tr_test", AmountCents: amount}, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// fixture заказчик, tastemaker ($15 за остановку), администратор и справочники
type fixture struct {
	svc       *CustomDateService
	store     *memStore
	scheduler *fakeScheduler
	notifier  *fakeNotifier
	tracker   *fakeTracker
	payouts   *fakePayouts
	clock     *fakeClock

	requestor      *model.User
	tastemakerUser *model.User
	admin          *model.User
	outsider       *model.User
	tastemaker     *model.Tastemaker

	city      *model.City
	tag       *model.Tag
	locations []*model.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemStore(clock.now)

	chatID := int64(4242)
	f := &fixture{
		store:          store,
		scheduler:      &fakeScheduler{},
		notifier:       &fakeNotifier{},
		tracker:        &fakeTracker{},
		payouts:        &fakePayouts{},
		clock:          clock,
		requestor:      &model.User{ID: uuid.New(), Username: "alex", Email: "alex@example.com", FirstName: "Alex", Role: model.RoleUser},
		tastemakerUser: &model.User{ID: uuid.New(), Username: "bea", Email: "bea@example.com", FirstName: "Bea", Role: model.RoleUser, TelegramChatID: &chatID},
		admin:          &model.User{ID: uuid.New(), Username: "root", Email: "admin@example.com", Role: model.RoleAdmin},
		outsider:       &model.User{ID: uuid.New(), Username: "carl", Email: "carl@example.com", Role: model.RoleUser},
		city:           &model.City{ID: uuid.New(), Name: "Austin", StateInitials: "TX"},
		tag:            &model.Tag{ID: uuid.New(), Name: "Romantic"},
	}
	f.tastemaker = &model.Tastemaker{
		ID:              uuid.New(),
		UserID:          f.tastemakerUser.ID,
		PricePerStop:    1500,
		IsSetUp:         true,
		StripeAccountID: "acct_123",
	}

	for _, u := range []*model.User{f.requestor, f.tastemakerUser, f.admin, f.outsider} {
		store.users[u.ID] = u
	}
	store.tastemakers[f.tastemaker.ID] = f.tastemaker
	store.cities[f.city.ID] = f.city
	store.tags[f.tag.ID] = f.tag

	for _, name := range []string{"Cafe", "Museum", "Bar", "Park"} {
		loc := &model.Location{ID: uuid.New(), Name: name, Street: "1 Main St", City: "Austin", StateInitials: "TX", PostalCode: "78701"}
		store.locations[loc.ID] = loc
		f.locations = append(f.locations, loc)
	}

	f.svc = NewCustomDateService(store, f.scheduler, f.notifier, f.tracker, f.payouts,
		Options{AdminEmail: "ops@example.com", AppURL: "https://app.example.com"}, zap.NewNop())
	f.svc.now = clock.now

	return f
}

func identity(u *model.User) *auth.Identity {
	return &auth.Identity{UserID: u.ID, Role: u.Role}
}

func (f *fixture) asRequestor() *auth.Identity  { return identity(f.requestor) }
func (f *fixture) asTastemaker() *auth.Identity { return identity(f.tastemakerUser) }
func (f *fixture) asAdmin() *auth.Identity      { return identity(f.admin) }
func (f *fixture) asOutsider() *auth.Identity   { return identity(f.outsider) }

func (f *fixture) requestInput(numStops int) RequestCustomDateInput {
	return RequestCustomDateInput{
		TastemakerUsername: f.tastemakerUser.Username,
		BeginsAt:           f.clock.now().Add(48 * time.Hour),
		NumStops:           numStops,
		Cities:             []uuid.UUID{f.city.ID},
		Tags:               []uuid.UUID{f.tag.ID},
	}
}

func (f *fixture) requestDate(t *testing.T, numStops int) *model.CustomDate {
	t.Helper()
	date, err := f.svc.RequestCustomDate(context.Background(), f.asRequestor(), f.requestInput(numStops))
	require.NoError(t, err)
	return date
}

func (f *fixture) acceptedDate(t *testing.T) *model.CustomDate {
	t.Helper()
	date := f.requestDate(t, 2)
	accepted, err := f.svc.RespondToCustomDate(context.Background(), f.asTastemaker(), date.ID, "accepted")
	require.NoError(t, err)
	return accepted
}

func (f *fixture) stops(locations ...*model.Location) StopsInput {
	var input StopsInput
	for i, loc := range locations {
		input.Stops = append(input.Stops, StopInput{
			Content:  "Stop " + string(rune('A'+i)),
			Location: LocationInput{ID: loc.ID},
		})
	}
	return input
}

func (f *fixture) suggest(t *testing.T, date *model.CustomDate) *model.CustomDateSuggestion {
	t.Helper()
	suggestion, err := f.svc.SuggestCustomDate(context.Background(), f.asTastemaker(), date.ID,
		f.stops(f.locations[0], f.locations[1]))
	require.NoError(t, err)
	return suggestion
}

func (f *fixture) storedDate(id uuid.UUID) *model.CustomDate {
	date, _ := f.store.GetCustomDateByID(context.Background(), id)
	return date
}

// requireKind проверяет класс ошибки сервиса
func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var serviceErr *Error
	require.ErrorAs(t, err, &serviceErr)
	require.Equal(t, kind, serviceErr.Kind, serviceErr.Error())
	return serviceErr
}
