package store

import "vsrepair/booking-service/internal/models"

var transitionMap = map[string][]string{
	models.StatusPending:    {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled, models.StatusPending},
	models.StatusCompleted:  {},
	models.StatusCancelled:  {},
}

func ValidStatus(status string) bool {
	_, ok := transitionMap[status]
	return ok
}

// ValidTransition reports whether a request in fromStatus may move to
// toStatus. Staying in the same status is always allowed.
func ValidTransition(fromStatus, toStatus string) bool {
	if !ValidStatus(toStatus) {
		return false
	}
	if fromStatus == toStatus {
		return true
	}
	allowed, ok := transitionMap[fromStatus]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == toStatus {
			return true
		}
	}
	return false
}
