package projection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/engine"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store"
	"github.com/RakshitSrivastava-13/SmartQueueManagement/internal/store/memory"
)

var testNow = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *engine.Engine) {
	t.Helper()
	mem := memory.NewStore(memory.Seed{
		Departments: []models.Department{{DepartmentID: "dept-gen", Name: "General", Code: "GEN"}},
		Doctors: []models.Doctor{
			{DoctorID: "doc-1", Name: "Alpha", DepartmentID: "dept-gen", RoomNumber: "101", Available: true, ConsultationDurationMinutes: 12},
			{DoctorID: "doc-2", Name: "Beta", DepartmentID: "dept-gen", RoomNumber: "102", Available: true, ConsultationDurationMinutes: 8},
		},
		Patients: []models.Patient{
			{PatientID: "p1", Name: "Asha"},
			{PatientID: "p2", Name: "Bala"},
			{PatientID: "p3", Name: "Chitra"},
		},
	})
	now := func() time.Time { return testNow }
	eng := engine.New(mem, mem, mem, engine.Options{Location: time.UTC, Now: now})
	return New(eng, mem, now), eng
}

func create(t *testing.T, eng *engine.Engine, patientID, doctorID string) models.Token {
	t.Helper()
	token, err := eng.CreateToken(context.Background(), engine.CreateTokenInput{
		PatientID:    patientID,
		DepartmentID: "dept-gen",
		DoctorID:     doctorID,
	})
	require.NoError(t, err)
	return token
}

func TestLiveBoardShowsActiveAndWaiting(t *testing.T) {
	svc, eng := setup(t)
	ctx := context.Background()
	first := create(t, eng, "p1", "doc-1")
	second := create(t, eng, "p2", "doc-1")
	third := create(t, eng, "p3", "doc-1")
	_, err := eng.CallNext(ctx, "doc-1")
	require.NoError(t, err)

	board, err := svc.LiveBoard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 1)

	view := board[0]
	assert.Equal(t, "doc-1", view.DoctorID)
	assert.Equal(t, "Alpha", view.DoctorName)
	assert.Equal(t, "General", view.DepartmentName)
	require.NotNil(t, view.CurrentToken)
	assert.Equal(t, first.TokenNumber, view.CurrentToken.TokenNumber)
	assert.Equal(t, 2, view.TotalWaiting)
	assert.Equal(t, 12, view.AverageWaitTimeMinutes)

	require.Len(t, view.WaitingTokens, 2)
	assert.Equal(t, second.TokenNumber, view.WaitingTokens[0].TokenNumber)
	assert.Equal(t, third.TokenNumber, view.WaitingTokens[1].TokenNumber)
	for i, waiting := range view.WaitingTokens {
		assert.Equal(t, i+1, waiting.QueuePosition)
		assert.Equal(t, i*12, waiting.EstimatedWaitMinutes)
		assert.Empty(t, waiting.PatientName)
	}
}

func TestTokenStatusIsConsistentWithBoard(t *testing.T) {
	svc, eng := setup(t)
	ctx := context.Background()
	create(t, eng, "p1", "doc-2")
	second := create(t, eng, "p2", "doc-2")

	view, err := svc.TokenStatus(ctx, second.TokenNumber)
	require.NoError(t, err)
	assert.Equal(t, "Bala", view.PatientName)
	assert.Equal(t, "Beta", view.DoctorName)
	assert.Equal(t, "102", view.RoomNumber)
	assert.Equal(t, 2, view.QueuePosition)
	assert.Equal(t, 1, view.PatientsAhead)
	assert.Equal(t, 8, view.EstimatedWaitMinutes)
	require.NotNil(t, view.EstimatedServiceTime)
	assert.Equal(t, testNow.Add(8*time.Minute), *view.EstimatedServiceTime)

	board, err := svc.QueueByDoctor(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, view.QueuePosition, board.WaitingTokens[1].QueuePosition)
	assert.Equal(t, view.EstimatedWaitMinutes, board.WaitingTokens[1].EstimatedWaitMinutes)

	_, err = svc.TokenStatus(ctx, "GEN-20261017-9999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompletedTokenHasNoPosition(t *testing.T) {
	svc, eng := setup(t)
	ctx := context.Background()
	token := create(t, eng, "p1", "doc-1")
	_, err := eng.CallNext(ctx, "doc-1")
	require.NoError(t, err)
	_, err = eng.StartConsultation(ctx, token.TokenID)
	require.NoError(t, err)
	_, err = eng.EndConsultation(ctx, token.TokenID)
	require.NoError(t, err)

	view, err := svc.TokenByID(ctx, token.TokenID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, view.Status)
	assert.Zero(t, view.QueuePosition)
	assert.Nil(t, view.EstimatedServiceTime)
}

func TestQueueByDepartment(t *testing.T) {
	svc, eng := setup(t)
	ctx := context.Background()
	shared := create(t, eng, "p1", "")
	create(t, eng, "p2", "doc-2")

	views, err := svc.QueueByDepartment(ctx, "dept-gen")
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Empty(t, views[0].DoctorID)
	require.Len(t, views[0].WaitingTokens, 1)
	assert.Equal(t, shared.TokenNumber, views[0].WaitingTokens[0].TokenNumber)
	assert.Equal(t, 10, views[0].AverageWaitTimeMinutes)
	assert.Equal(t, "Alpha", views[1].DoctorName)
	assert.Equal(t, "Beta", views[2].DoctorName)
	assert.Equal(t, 1, views[2].TotalWaiting)

	_, err = svc.QueueByDepartment(ctx, "dept-none")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.QueueByDoctor(ctx, "doc-none")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDashboardCounts(t *testing.T) {
	svc, eng := setup(t)
	ctx := context.Background()
	a := create(t, eng, "p1", "doc-1")
	b := create(t, eng, "p2", "doc-1")
	create(t, eng, "p3", "doc-2")
	create(t, eng, "p3", "")

	_, err := eng.CallNext(ctx, "doc-1")
	require.NoError(t, err)
	_, err = eng.MarkNoShow(ctx, a.TokenID)
	require.NoError(t, err)
	_, err = eng.CancelWaitingToken(ctx, b.TokenID)
	require.NoError(t, err)

	all, err := svc.Dashboard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, all.TotalPatientsToday)
	assert.Equal(t, 2, all.TotalWaiting)
	assert.Equal(t, 1, all.TotalNoShow)
	assert.Equal(t, 1, all.TotalCancelled)
	assert.Equal(t, 0, all.StatusWiseCount[models.StatusCompleted])
	assert.Equal(t, 4, all.DepartmentWiseCount["General"])
	assert.Equal(t, 10, all.AverageWaitTime)

	one, err := svc.Dashboard(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, one.TotalPatientsToday)
	assert.Equal(t, 0, one.TotalWaiting)
	assert.Equal(t, 12, one.AverageWaitTime)

	_, err = svc.Dashboard(ctx, "doc-none")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestActiveConsultationsAndPatientTokens(t *testing.T) {
	svc, eng := setup(t)
	ctx := context.Background()
	first := create(t, eng, "p1", "doc-1")
	create(t, eng, "p2", "doc-2")
	again := create(t, eng, "p1", "doc-2")
	_, err := eng.CallNext(ctx, "doc-1")
	require.NoError(t, err)

	active, err := svc.ActiveConsultations(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.TokenID, active[0].TokenID)
	assert.Equal(t, "Asha", active[0].PatientName)

	mine, err := svc.PatientTokens(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	numbers := []string{mine[0].TokenNumber, mine[1].TokenNumber}
	assert.ElementsMatch(t, []string{first.TokenNumber, again.TokenNumber}, numbers)
	for _, view := range mine {
		if view.TokenID == again.TokenID {
			assert.Equal(t, 2, view.QueuePosition)
		}
	}

	_, err = svc.PatientTokens(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDoctorQueueCountsUrgentDepartmentTokens(t *testing.T) {
	svc, eng := setup(t)
	ctx := context.Background()
	own := create(t, eng, "p1", "doc-1")
	_, err := eng.CreateToken(ctx, engine.CreateTokenInput{PatientID: "p2", DepartmentID: "dept-gen", Priority: "EMERGENCY"})
	require.NoError(t, err)

	board, err := svc.QueueByDoctor(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, board.WaitingTokens, 1)
	assert.Equal(t, 2, board.WaitingTokens[0].QueuePosition)
	assert.Equal(t, 12, board.WaitingTokens[0].EstimatedWaitMinutes)

	status, err := svc.TokenStatus(ctx, own.TokenNumber)
	require.NoError(t, err)
	assert.Equal(t, board.WaitingTokens[0].QueuePosition, status.QueuePosition)
	assert.Equal(t, board.WaitingTokens[0].EstimatedWaitMinutes, status.EstimatedWaitMinutes)

	mine, err := svc.PatientTokens(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 2, mine[0].QueuePosition)
}
