package service

import (
	"time"

	"github.com/Freeeeeet/concierge/internal/model"
)

// changesCanBeRequested разрешён только один раунд правок
func changesCanBeRequested(requestor bool, latest *model.CustomDateSuggestion, revisions int) bool {
	return requestor &&
		latest != nil &&
		latest.Status == model.SuggestionStatusSuggested &&
		revisions == 1
}

func canBeAccepted(requestor bool, latest *model.CustomDateSuggestion) bool {
	return requestor && (latest == nil || latest.Status != model.SuggestionStatusAccepted)
}

// refundCanBeRequested возврат возможен в течение 48 часов после ответа tastemaker
func refundCanBeRequested(requestor bool, date *model.CustomDate, latest *model.CustomDateSuggestion, now time.Time) bool {
	if !requestor || !date.IsAccepted() || date.RespondedAt == nil {
		return false
	}
	if latest != nil && latest.Status == model.SuggestionStatusAccepted {
		return false
	}
	return now.Sub(*date.RespondedAt) < refundWindow
}

func suggestionCanBeRevised(tastemaker bool, latest *model.CustomDateSuggestion, revisions int) bool {
	if !tastemaker {
		return false
	}
	return latest == nil ||
		(latest.Status == model.SuggestionStatusChangesRequested && revisions == 1)
}
