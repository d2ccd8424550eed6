package controller

import (
	"net/http"

	"github.com/Freeeeeet/concierge/internal/auth"
	"github.com/Freeeeeet/concierge/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, &service.Error{
			Kind:    service.KindValidation,
			Message: "invalid input",
			Fields:  []service.FieldError{{Path: "id", Message: "Must be a valid id"}},
		}
	}
	return id, nil
}

func bind(c echo.Context, dst any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return errBadBody
	}
	return nil
}

func viewer(c echo.Context) *auth.Identity {
	return auth.FromContext(c.Request().Context())
}

func (ctrl *Controller) RequestCustomDate(c echo.Context) error {
	var input service.RequestCustomDateInput
	if err := bind(c, &input); err != nil {
		return err
	}

	date, err := ctrl.dates.RequestCustomDate(c.Request().Context(), viewer(c), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, date)
}

func (ctrl *Controller) ListCustomDates(c echo.Context) error {
	dates, err := ctrl.dates.ListCustomDates(c.Request().Context(), viewer(c), c.QueryParam("as"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dates)
}

func (ctrl *Controller) GetCustomDate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	view, err := ctrl.dates.GetCustomDate(c.Request().Context(), viewer(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

type respondRequest struct {
	Response string `json:"response"`
}

func (ctrl *Controller) RespondToCustomDate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req respondRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	date, err := ctrl.dates.RespondToCustomDate(c.Request().Context(), viewer(c), id, req.Response)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, date)
}

func (ctrl *Controller) CancelCustomDate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	date, err := ctrl.dates.CancelCustomDate(c.Request().Context(), viewer(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, date)
}

func (ctrl *Controller) SuggestCustomDate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var input service.StopsInput
	if err := bind(c, &input); err != nil {
		return err
	}

	suggestion, err := ctrl.dates.SuggestCustomDate(c.Request().Context(), viewer(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, suggestion)
}

func (ctrl *Controller) MakeChangesOnSuggestion(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var input service.StopsInput
	if err := bind(c, &input); err != nil {
		return err
	}

	suggestion, err := ctrl.dates.MakeChangesOnSuggestion(c.Request().Context(), viewer(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, suggestion)
}

func (ctrl *Controller) RequestChangesOnCustomDateSuggestion(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var input service.RequestChangesInput
	if err := bind(c, &input); err != nil {
		return err
	}

	suggestion, err := ctrl.dates.RequestChangesOnCustomDateSuggestion(c.Request().Context(), viewer(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, suggestion)
}

func (ctrl *Controller) AcceptCustomDateSuggestion(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var input service.AcceptSuggestionInput
	if err := bind(c, &input); err != nil {
		return err
	}

	suggestion, err := ctrl.dates.AcceptCustomDateSuggestion(c.Request().Context(), viewer(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, suggestion)
}

func (ctrl *Controller) RequestRefundOnCustomDate(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var input service.RefundRequestInput
	if err := bind(c, &input); err != nil {
		return err
	}

	refund, err := ctrl.dates.RequestRefundOnCustomDate(c.Request().Context(), viewer(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, refund)
}

func (ctrl *Controller) ListRequestedRefunds(c echo.Context) error {
	refunds, err := ctrl.dates.ListRequestedRefunds(c.Request().Context(), viewer(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refunds)
}

func (ctrl *Controller) RespondToRequestedRefund(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var input service.RefundResponseInput
	if err := bind(c, &input); err != nil {
		return err
	}

	refund, err := ctrl.dates.RespondToRequestedRefund(c.Request().Context(), viewer(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refund)
}

func (ctrl *Controller) PaymentMethodRemovable(c echo.Context) error {
	removable, err := ctrl.dates.PaymentMethodRemovable(c.Request().Context(), viewer(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"removable": removable})
}

func (ctrl *Controller) ListCustomDateMessages(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	messages, err := ctrl.dates.ListCustomDateMessages(c.Request().Context(), viewer(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messages)
}

func (ctrl *Controller) SendCustomDateMessage(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var input service.MessageInput
	if err := bind(c, &input); err != nil {
		return err
	}

	message, err := ctrl.dates.SendCustomDateMessage(c.Request().Context(), viewer(c), id, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, message)
}

// GenerateItinerary отдаёт .ics файл; вход не обязателен
func (ctrl *Controller) GenerateItinerary(c echo.Context) error {
	var input service.ItineraryInput
	if err := bind(c, &input); err != nil {
		return err
	}

	calendar, err := ctrl.dates.GenerateItinerary(c.Request().Context(), viewer(c), input)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="itinerary.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(calendar))
}
