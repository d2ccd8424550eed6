// Package itinerary превращает остановки свидания в события календаря.
package itinerary

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
	ics "github.com/arran4/golang-ical"
)

const (
	stopDuration = time.Hour
	alarmTrigger = "-PT1H"
	productID    = "-//concierge//custom dates//EN"
)

var ErrNoStops = errors.New("itinerary has no stops")

// Person организатор или гость
type Person struct {
	Name  string
	Email string
}

type Stop struct {
	Title    string
	Content  string
	Location *model.Location
}

type Request struct {
	Start     time.Time
	Stops     []Stop
	Organizer Person
	Guest     *Person
}

// Event одно событие календаря на одну остановку
type Event struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	HasAlarm    bool
	Organizer   Person
	Attendees   []Person
}

// BuildEvents строит по событию на остановку: i-я остановка занимает
// [start+i ч, start+i+1 ч). Будильник за час только у первой.
// Ошибка в любой остановке отменяет весь набор.
func BuildEvents(req Request) ([]Event, error) {
	if len(req.Stops) == 0 {
		return nil, ErrNoStops
	}
	if strings.TrimSpace(req.Organizer.Email) == "" {
		return nil, errors.New("organizer email is required")
	}

	var attendees []Person
	if req.Guest != nil {
		if strings.TrimSpace(req.Guest.Email) == "" {
			return nil, errors.New("guest email is required")
		}
		attendees = []Person{*req.Guest}
	}

	events := make([]Event, 0, len(req.Stops))
	for i, stop := range req.Stops {
		if stop.Location == nil {
			return nil, fmt.Errorf("stop %d: location is required", i)
		}

		title := stop.Title
		if title == "" {
			title = fmt.Sprintf("Stop %d: %s", i+1, stop.Location.Name)
		}

		start := req.Start.Add(time.Duration(i) * stopDuration)
		events = append(events, Event{
			UID:         fmt.Sprintf("%d-%d@concierge", req.Start.Unix(), i),
			Title:       title,
			Description: stop.Content,
			Location:    stop.Location.Address(),
			Start:       start,
			End:         start.Add(stopDuration),
			HasAlarm:    i == 0,
			Organizer:   req.Organizer,
			Attendees:   attendees,
		})
	}

	return events, nil
}

// Render сериализует события в iCalendar
func Render(events []Event) (string, error) {
	if len(events) == 0 {
		return "", ErrNoStops
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId(productID)

	for _, e := range events {
		event := cal.AddEvent(e.UID)
		event.SetDtStampTime(e.Start)
		event.SetStartAt(e.Start)
		event.SetEndAt(e.End)
		event.SetSummary(e.Title)
		event.SetDescription(e.Description)
		event.SetLocation(e.Location)
		event.SetOrganizer("mailto:"+e.Organizer.Email, ics.WithCN(e.Organizer.Name))

		for _, a := range e.Attendees {
			event.AddAttendee("mailto:"+a.Email,
				ics.WithCN(a.Name),
				ics.CalendarUserTypeIndividual,
				ics.ParticipationStatusNeedsAction,
				ics.ParticipationRoleReqParticipant,
				ics.WithRSVP(true),
			)
		}

		if e.HasAlarm {
			alarm := event.AddAlarm()
			alarm.SetAction(ics.ActionAudio)
			alarm.SetTrigger(alarmTrigger)
		}
	}

	return cal.Serialize(), nil
}

// Generate BuildEvents + Render
func Generate(req Request) (string, error) {
	events, err := BuildEvents(req)
	if err != nil {
		return "", err
	}
	return Render(events)
}

// FromSuggestion остановки принятой ревизии в порядке следования
func FromSuggestion(s *model.CustomDateSuggestion) []Stop {
	stops := make([]Stop, 0, len(s.Stops))
	for _, st := range s.Stops {
		stops = append(stops, Stop{
			Content:  st.Content,
			Location: st.Location,
		})
	}
	return stops
}
