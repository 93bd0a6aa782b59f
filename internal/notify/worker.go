package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
)

// PatientLookup resolves where a patient can be reached.
type PatientLookup interface {
	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
}

type WorkerConfig struct {
	SMS   Provider
	Email Provider
	// RemindAtPosition sends a "you're up soon" message when a queue.advanced
	// event puts the patient at or below this position. Zero disables it.
	RemindAtPosition int
}

// Worker consumes TypeQueueNotification tasks and delivers them to patients.
type Worker struct {
	patients PatientLookup
	sms      Provider
	email    Provider
	remindAt int
}

func NewWorker(patients PatientLookup, cfg WorkerConfig) *Worker {
	if cfg.SMS == nil {
		cfg.SMS = LogProvider
	}
	if cfg.Email == nil {
		cfg.Email = LogProvider
	}
	return &Worker{patients: patients, sms: cfg.SMS, email: cfg.Email, remindAt: cfg.RemindAtPosition}
}

// Register wires the worker into an asynq mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeQueueNotification, w.HandleTask)
}

// HandleTask returns an error only for failures worth retrying. Malformed
// payloads and unknown patients are dropped with asynq.SkipRetry.
func (w *Worker) HandleTask(ctx context.Context, task *asynq.Task) error {
	event, err := ParseTask(task)
	if err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}
	body := w.render(event)
	if body == "" {
		return nil
	}
	patient, err := w.patients.GetPatient(ctx, event.PatientID)
	if err != nil {
		return fmt.Errorf("lookup patient %s: %v: %w", event.PatientID, err, asynq.SkipRetry)
	}

	msg := Message{EventType: event.Type, TokenNumber: event.TokenNumber, Body: body}
	var errs []error
	if patient.Phone != "" {
		msg.Channel, msg.Recipient = ChannelSMS, patient.Phone
		if err := w.sms.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if patient.Email != "" {
		msg.Channel, msg.Recipient = ChannelEmail, patient.Email
		if err := w.email.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("notify: delivery failed type=%s token=%s: %v", event.Type, event.TokenNumber, err)
		return err
	}
	return nil
}

func (w *Worker) render(event Event) string {
	template := templateFor(event.Type)
	if event.Type == EventQueueAdvanced && (w.remindAt <= 0 || event.QueuePosition > w.remindAt) {
		return ""
	}
	if template == "" {
		return ""
	}
	return renderTemplate(template, event)
}

func templateFor(eventType string) string {
	switch eventType {
	case EventTokenCreated:
		return "Token {token_number} issued. Position {position}, about {wait} min."
	case EventTokenCalled:
		return "Token {token_number}: please proceed to your doctor now."
	case EventConsultationCompleted:
		return "Token {token_number}: your consultation is complete. Thank you for visiting."
	case EventQueueAdvanced:
		return "Token {token_number}: you are number {position} in line, about {wait} min."
	case EventPriorityChanged:
		return "Token {token_number} priority updated. Position {position}."
	default:
		return ""
	}
}

func renderTemplate(template string, event Event) string {
	return strings.NewReplacer(
		"{token_number}", event.TokenNumber,
		"{position}", strconv.Itoa(event.QueuePosition),
		"{wait}", strconv.Itoa(event.EstimatedWaitMinutes),
	).Replace(template)
}
