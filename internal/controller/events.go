package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/concierge/internal/notify"
	"github.com/Freeeeeet/concierge/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var defaultTopics = []string{
	notify.TopicNewCustomDate,
	notify.TopicStatus,
	notify.TopicSuggestion,
	notify.TopicMessage,
}

func parseTopics(raw string) ([]string, error) {
	if raw == "" {
		return defaultTopics, nil
	}

	var topics []string
	for _, topic := range strings.Split(raw, ",") {
		topic = strings.TrimSpace(topic)
		known := false
		for _, t := range defaultTopics {
			if t == topic {
				known = true
				break
			}
		}
		if !known {
			return nil, &service.Error{
				Kind:    service.KindValidation,
				Message: "invalid input",
				Fields:  []service.FieldError{{Path: "topics", Message: fmt.Sprintf("Unknown topic %q", topic)}},
			}
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

// StreamEvents отдаёт события пользователя как server-sent events
func (ctrl *Controller) StreamEvents(c echo.Context) error {
	who := viewer(c)
	if who == nil {
		return service.ErrNotLoggedIn
	}

	topics, err := parseTopics(c.QueryParam("topics"))
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	events, err := ctrl.events.Subscribe(ctx, who.UserID, topics...)
	if err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(ctrl.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				ctrl.logger.Warn("Failed to encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
