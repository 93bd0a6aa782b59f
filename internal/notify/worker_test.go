package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
)

type patientMap map[string]models.Patient

func (p patientMap) GetPatient(_ context.Context, patientID string) (models.Patient, error) {
	patient, ok := p[patientID]
	if !ok {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return patient, nil
}

type recordingProvider struct {
	sent []string
	msgs []Message
	err  error
}

func (r *recordingProvider) Deliver(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg.Recipient+"|"+msg.Body)
	r.msgs = append(r.msgs, msg)
	return r.err
}

func newTestWorker(remindAt int) (*Worker, *recordingProvider, *recordingProvider) {
	sms := &recordingProvider{}
	email := &recordingProvider{}
	patients := patientMap{
		"p1": {PatientID: "p1", Phone: "9800000001", Email: "p1@example.com"},
		"p2": {PatientID: "p2", Phone: "9800000002"},
	}
	return NewWorker(patients, WorkerConfig{SMS: sms, Email: email, RemindAtPosition: remindAt}), sms, email
}

func mustTask(t *testing.T, event Event) *asynq.Task {
	t.Helper()
	task, err := NewTask(event)
	require.NoError(t, err)
	return task
}

func TestWorkerDeliversOnEveryChannel(t *testing.T) {
	w, sms, email := newTestWorker(0)
	event := Event{Type: EventTokenCreated, PatientID: "p1", TokenNumber: "GEN-20261017-0001", QueuePosition: 2, EstimatedWaitMinutes: 20}

	require.NoError(t, w.HandleTask(context.Background(), mustTask(t, event)))
	assert.Equal(t, []string{"9800000001|Token GEN-20261017-0001 issued. Position 2, about 20 min."}, sms.sent)
	require.Len(t, email.msgs, 1)
	assert.Equal(t, Message{
		Channel:     ChannelEmail,
		EventType:   EventTokenCreated,
		TokenNumber: "GEN-20261017-0001",
		Recipient:   "p1@example.com",
		Body:        "Token GEN-20261017-0001 issued. Position 2, about 20 min.",
	}, email.msgs[0])
	assert.Equal(t, ChannelSMS, sms.msgs[0].Channel)
}

func TestWorkerRemindsOnlyNearTheFront(t *testing.T) {
	w, sms, _ := newTestWorker(2)

	far := Event{Type: EventQueueAdvanced, PatientID: "p2", TokenNumber: "GEN-20261017-0009", QueuePosition: 5}
	require.NoError(t, w.HandleTask(context.Background(), mustTask(t, far)))
	assert.Empty(t, sms.sent)

	near := far
	near.QueuePosition = 1
	require.NoError(t, w.HandleTask(context.Background(), mustTask(t, near)))
	assert.Len(t, sms.sent, 1)
}

func TestWorkerThanksPatientOnCompletion(t *testing.T) {
	w, sms, email := newTestWorker(0)
	event := Event{Type: EventConsultationCompleted, PatientID: "p1", TokenNumber: "GEN-20261017-0003"}
	require.NoError(t, w.HandleTask(context.Background(), mustTask(t, event)))
	assert.Equal(t, []string{"9800000001|Token GEN-20261017-0003: your consultation is complete. Thank you for visiting."}, sms.sent)
	require.Len(t, email.msgs, 1)
	assert.Equal(t, EventConsultationCompleted, email.msgs[0].EventType)
}

func TestWorkerIgnoresUnknownEvents(t *testing.T) {
	w, sms, _ := newTestWorker(0)
	event := Event{Type: "token.archived", PatientID: "p1"}
	require.NoError(t, w.HandleTask(context.Background(), mustTask(t, event)))
	assert.Empty(t, sms.sent)
}

func TestWorkerSkipsRetryForBadInput(t *testing.T) {
	w, _, _ := newTestWorker(0)

	err := w.HandleTask(context.Background(), asynq.NewTask(TypeQueueNotification, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = w.HandleTask(context.Background(), mustTask(t, Event{Type: EventTokenCalled, PatientID: "ghost"}))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestWorkerRetriesProviderFailure(t *testing.T) {
	w, sms, _ := newTestWorker(0)
	sms.err = errors.New("gateway down")

	err := w.HandleTask(context.Background(), mustTask(t, Event{Type: EventTokenCalled, PatientID: "p2", TokenNumber: "X-1"}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestProviderFor(t *testing.T) {
	assert.IsType(t, &Gateway{}, ProviderFor(ChannelSMS, "https://hooks.example.com/sms", "t"))
	for _, gateway := range []string{"", "log", "noop", "carrier-pigeon"} {
		provider := ProviderFor(ChannelSMS, gateway, "")
		require.NotNil(t, provider, gateway)
		assert.NoError(t, provider.Deliver(context.Background(), Message{Channel: ChannelSMS, TokenNumber: "X-1"}), gateway)
	}
}

func TestGatewayPostsMessage(t *testing.T) {
	var (
		gotAuth string
		got     Message
	)
	status := http.StatusNoContent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
	}))
	defer server.Close()

	provider := ProviderFor(ChannelSMS, server.URL, "secret")
	msg := Message{Channel: ChannelSMS, EventType: EventTokenCalled, TokenNumber: "GEN-20261017-0001", Recipient: "9800000001", Body: "hello"}
	require.NoError(t, provider.Deliver(context.Background(), msg))
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, msg, got)

	status = http.StatusBadGateway
	err := provider.Deliver(context.Background(), msg)
	assert.ErrorIs(t, err, errGatewayRejected)
	assert.Contains(t, err.Error(), "GEN-20261017-0001")
}
