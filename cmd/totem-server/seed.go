package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/totem/totem/internal/domain/patient"
)

func samplePatients() []*patient.Patient {
	return []*patient.Patient{
		{
			Document:  "12345678",
			FirstName: "Juan Carlos",
			LastName:  "Pérez",
			Appointment: patient.Appointment{
				Doctor:    "Dr. García",
				Time:      "10:30",
				Floor:     "Primer Piso",
				Date:      "2025-07-30",
				Specialty: "Cardiología",
				Room:      "101",
			},
		},
		{
			Document:  "87654321",
			FirstName: "María Elena",
			LastName:  "González",
			Appointment: patient.Appointment{
				Doctor:    "Dra. López",
				Time:      "14:00",
				Floor:     "Segundo Piso",
				Date:      "2025-07-30",
				Specialty: "Ginecología",
				Room:      "205",
			},
		},
		{
			Document:  "11223344",
			FirstName: "Pedro Luis",
			LastName:  "Rodríguez",
			Appointment: patient.Appointment{
				Doctor:    "Dr. Martínez",
				Time:      "09:15",
				Floor:     "Planta Baja",
				Date:      "2025-07-30",
				Specialty: "Traumatología",
				Room:      "15",
			},
		},
	}
}

// seedPatients inserts the sample patients, skipping documents that already
// exist. Returns the number inserted.
func seedPatients(ctx context.Context, svc *patient.Service, logger zerolog.Logger) (int, error) {
	inserted := 0
	for _, p := range samplePatients() {
		err := svc.Create(ctx, p)
		switch {
		case errors.Is(err, patient.ErrDuplicate):
			logger.Info().Str("documento", p.Document).Msg("sample patient already present")
		case err != nil:
			return inserted, err
		default:
			inserted++
		}
	}
	return inserted, nil
}
