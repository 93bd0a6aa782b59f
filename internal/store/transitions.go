package store

import "github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"

type Action string

const (
	ActionCall           Action = "call_next"
	ActionStart          Action = "start_consultation"
	ActionEnd            Action = "end_consultation"
	ActionCancelActive   Action = "cancel_consultation"
	ActionNoShow         Action = "no_show"
	ActionSkip           Action = "skip"
	ActionCancelWaiting  Action = "cancel_waiting"
	ActionChangePriority Action = "change_priority"
)

type transition struct {
	from []models.Status
	to   models.Status
}

// Skip and ChangePriority land back in WAITING: skip re-queues at the tail of
// the band, ChangePriority only re-sorts a token that never left WAITING.
var transitionMap = map[Action]transition{
	ActionCall:           {from: []models.Status{models.StatusWaiting}, to: models.StatusCalled},
	ActionStart:          {from: []models.Status{models.StatusCalled}, to: models.StatusInConsultation},
	ActionEnd:            {from: []models.Status{models.StatusInConsultation}, to: models.StatusCompleted},
	ActionCancelActive:   {from: []models.Status{models.StatusCalled, models.StatusInConsultation}, to: models.StatusCancelled},
	ActionNoShow:         {from: []models.Status{models.StatusCalled}, to: models.StatusNoShow},
	ActionSkip:           {from: []models.Status{models.StatusCalled, models.StatusWaiting}, to: models.StatusWaiting},
	ActionCancelWaiting:  {from: []models.Status{models.StatusWaiting}, to: models.StatusCancelled},
	ActionChangePriority: {from: []models.Status{models.StatusWaiting}, to: models.StatusWaiting},
}

func ValidTransition(action Action, fromStatus models.Status) bool {
	t, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range t.from {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// NextStatus returns the status an action leads to from fromStatus, or
// ErrInvalidTransition when the pair is not in the table.
func NextStatus(action Action, fromStatus models.Status) (models.Status, error) {
	if !ValidTransition(action, fromStatus) {
		return "", ErrInvalidTransition
	}
	return transitionMap[action].to, nil
}
