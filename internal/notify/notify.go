// Package notify publishes queue events for delivery by a separate worker
// (e-mail, SMS). Publishing happens after a change is committed; a failed
// publish never rolls the change back.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

const (
	EventTokenCreated          = "token.created"
	EventTokenCalled           = "token.called"
	EventConsultationCompleted = "consultation.completed"
	EventQueueAdvanced         = "queue.advanced"
	EventPriorityChanged       = "priority.changed"

	TypeQueueNotification = "queue:notify"
)

type Event struct {
	Type                 string    `json:"type"`
	TokenID              string    `json:"token_id"`
	TokenNumber          string    `json:"token_number"`
	PatientID            string    `json:"patient_id"`
	DepartmentID         string    `json:"department_id"`
	DoctorID             string    `json:"doctor_id,omitempty"`
	Status               string    `json:"status"`
	QueuePosition        int       `json:"queue_position,omitempty"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes,omitempty"`
	OccurredAt           time.Time `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	log.Printf("notify type=%s token=%s doctor=%s position=%d", event.Type, event.TokenNumber, event.DoctorID, event.QueuePosition)
	return nil
}

type AsynqOptions struct {
	Queue    string
	MaxRetry int
}

type AsynqNotifier struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

func NewAsynqNotifier(client *asynq.Client, opts AsynqOptions) *AsynqNotifier {
	queue := opts.Queue
	if queue == "" {
		queue = "notifications"
	}
	maxRetry := opts.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 3
	}
	return &AsynqNotifier{client: client, queue: queue, maxRetry: maxRetry}
}

func (n *AsynqNotifier) Notify(ctx context.Context, event Event) error {
	task, err := NewTask(event)
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task, asynq.Queue(n.queue), asynq.MaxRetry(n.maxRetry))
	return err
}

// NewTask wraps an event as an asynq task of TypeQueueNotification.
func NewTask(event Event) (*asynq.Task, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeQueueNotification, body), nil
}

// ParseTask is the consumer-side counterpart of NewTask.
func ParseTask(task *asynq.Task) (Event, error) {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
