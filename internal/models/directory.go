package models

type Department struct {
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
}

type Doctor struct {
	DoctorID                    string `json:"doctor_id"`
	Name                        string `json:"name"`
	Specialization              string `json:"specialization,omitempty"`
	DepartmentID                string `json:"department_id"`
	RoomNumber                  string `json:"room_number,omitempty"`
	Available                   bool   `json:"available"`
	ConsultationDurationMinutes int    `json:"consultation_duration_minutes,omitempty"`
	MaxPatientsPerDay           int    `json:"max_patients_per_day,omitempty"`
}

type Patient struct {
	PatientID     string `json:"patient_id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email,omitempty"`
	SeniorCitizen bool   `json:"senior_citizen"`
	Pregnant      bool   `json:"pregnant"`
}

type Staff struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}
