package models

import "time"

// TokenView is a token plus the figures derived from the live queue at read time.
type TokenView struct {
	Token
	PatientName          string     `json:"patient_name,omitempty"`
	DepartmentName       string     `json:"department_name,omitempty"`
	DepartmentCode       string     `json:"department_code,omitempty"`
	DoctorName           string     `json:"doctor_name,omitempty"`
	RoomNumber           string     `json:"room_number,omitempty"`
	QueuePosition        int        `json:"queue_position"`
	PatientsAhead        int        `json:"patients_ahead"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	EstimatedServiceTime *time.Time `json:"estimated_service_time,omitempty"`
}

type DoctorQueueView struct {
	DepartmentID           string      `json:"department_id"`
	DepartmentName         string      `json:"department_name,omitempty"`
	DoctorID               string      `json:"doctor_id"`
	DoctorName             string      `json:"doctor_name,omitempty"`
	RoomNumber             string      `json:"room_number,omitempty"`
	CurrentToken           *TokenView  `json:"current_token,omitempty"`
	WaitingTokens          []TokenView `json:"waiting_tokens"`
	TotalWaiting           int         `json:"total_waiting"`
	AverageWaitTimeMinutes int         `json:"average_wait_time_minutes"`
	LastUpdated            time.Time   `json:"last_updated"`
}

type DashboardStats struct {
	DoctorID            string         `json:"doctor_id,omitempty"`
	TotalPatientsToday  int            `json:"total_patients_today"`
	TotalWaiting        int            `json:"total_waiting"`
	TotalCalled         int            `json:"total_called"`
	TotalInConsultation int            `json:"total_in_consultation"`
	TotalCompleted      int            `json:"total_completed"`
	TotalCancelled      int            `json:"total_cancelled"`
	TotalNoShow         int            `json:"total_no_show"`
	AverageWaitTime     int            `json:"average_wait_time_minutes"`
	StatusWiseCount     map[Status]int `json:"status_wise_count"`
	DepartmentWiseCount map[string]int `json:"department_wise_count"`
}
