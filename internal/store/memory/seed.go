package memory

import "github.com/RakshitSrivastava-13/SmartQueueManagement/internal/models"

// DemoSeed is the reference data loaded when the service runs without a
// database.
func DemoSeed() Seed {
	departments := []models.Department{
		{DepartmentID: "11111111-0000-0000-0000-000000000001", Name: "General Medicine", Code: "OPD"},
		{DepartmentID: "11111111-0000-0000-0000-000000000002", Name: "Cardiology", Code: "CARD"},
		{DepartmentID: "11111111-0000-0000-0000-000000000003", Name: "Pediatrics", Code: "PED"},
		{DepartmentID: "11111111-0000-0000-0000-000000000004", Name: "Emergency", Code: "EMER"},
	}
	doctors := []models.Doctor{
		{DoctorID: "22222222-0000-0000-0000-000000000001", Name: "Rajesh Sharma", Specialization: "General Physician", DepartmentID: departments[0].DepartmentID, RoomNumber: "101", Available: true, ConsultationDurationMinutes: 10, MaxPatientsPerDay: 60},
		{DoctorID: "22222222-0000-0000-0000-000000000002", Name: "Suresh Nair", Specialization: "General Physician", DepartmentID: departments[0].DepartmentID, RoomNumber: "102", Available: true, ConsultationDurationMinutes: 10, MaxPatientsPerDay: 60},
		{DoctorID: "22222222-0000-0000-0000-000000000003", Name: "Priya Patel", Specialization: "Cardiologist", DepartmentID: departments[1].DepartmentID, RoomNumber: "201", Available: true, ConsultationDurationMinutes: 15, MaxPatientsPerDay: 40},
		{DoctorID: "22222222-0000-0000-0000-000000000004", Name: "Sneha Reddy", Specialization: "Pediatrician", DepartmentID: departments[2].DepartmentID, RoomNumber: "111", Available: true, ConsultationDurationMinutes: 12, MaxPatientsPerDay: 50},
		{DoctorID: "22222222-0000-0000-0000-000000000005", Name: "Arun Menon", Specialization: "Emergency Physician", DepartmentID: departments[3].DepartmentID, RoomNumber: "E01", Available: true, ConsultationDurationMinutes: 10, MaxPatientsPerDay: 100},
	}
	patients := []models.Patient{
		{PatientID: "33333333-0000-0000-0000-000000000001", Name: "Anita Desai", Phone: "9800000001"},
		{PatientID: "33333333-0000-0000-0000-000000000002", Name: "Mohan Rao", Phone: "9800000002", SeniorCitizen: true},
		{PatientID: "33333333-0000-0000-0000-000000000003", Name: "Lakshmi Iyer", Phone: "9800000003", Pregnant: true},
	}
	return Seed{Departments: departments, Doctors: doctors, Patients: patients}
}
