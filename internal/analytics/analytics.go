// Package analytics отправляет продуктовые события в Mixpanel.
// Отправка не блокирует вызывающего и ошибки только логируются.
package analytics

import (
	"sync"
	"time"

	"github.com/dukex/mixpanel"
	"go.uber.org/zap"
)

// Названия событий
const (
	EventCustomDateRequested   = "Custom Date Requested"
	EventCustomDateResponded   = "Custom Date Responded"
	EventCustomDateCancelled   = "Custom Date Cancelled"
	EventSuggestionSent        = "Custom Date Suggestion Sent"
	EventChangesRequested      = "Custom Date Changes Requested"
	EventSuggestionAccepted    = "Custom Date Suggestion Accepted"
	EventRefundRequested       = "Custom Date Refund Requested"
	EventRefundResolved        = "Custom Date Refund Resolved"
	EventCustomDateMessageSent = "Custom Date Message Sent"
)

// Tracker клиент Mixpanel
type Tracker struct {
	client mixpanel.Mixpanel
	logger *zap.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

func NewTracker(client mixpanel.Mixpanel, logger *zap.Logger) *Tracker {
	return &Tracker{client: client, logger: logger, now: time.Now}
}

// NewMixpanelTracker трекер с токеном проекта Mixpanel
func NewMixpanelTracker(token string, logger *zap.Logger) *Tracker {
	return NewTracker(mixpanel.New(token, ""), logger)
}

// Track отправляет событие в фоне
func (t *Tracker) Track(distinctID, event string, properties map[string]any) {
	now := t.now()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		err := t.client.Track(distinctID, event, &mixpanel.Event{
			Timestamp:  &now,
			Properties: properties,
		})
		if err != nil {
			t.logger.Warn("Failed to track event",
				zap.String("event", event),
				zap.String("distinct_id", distinctID),
				zap.Error(err),
			)
		}
	}()
}

// Flush ждёт завершения отправленных событий (при остановке сервера)
func (t *Tracker) Flush() {
	t.wg.Wait()
}

// Nop трекер-заглушка, когда MIXPANEL_TOKEN не задан
type Nop struct{}

func (Nop) Track(string, string, map[string]any) {}
