package patient

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("patient not found")
	ErrDuplicate     = errors.New("patient already exists")
	ErrNoAppointment = errors.New("patient has no scheduled appointment")
	ErrInvalid       = errors.New("invalid patient")
)

// Appointment is the scheduled visit embedded in a patient record. JSON names
// follow the kiosk frontend.
type Appointment struct {
	Doctor      string     `json:"medico"`
	Time        string     `json:"hora"`
	Floor       string     `json:"piso"`
	Date        string     `json:"fecha,omitempty"`
	Specialty   string     `json:"especialidad,omitempty"`
	Room        string     `json:"consultorio,omitempty"`
	Confirmed   bool       `json:"confirmado"`
	ConfirmedAt *time.Time `json:"fecha_confirmacion,omitempty"`
}

// Patient maps to the patients table.
type Patient struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	Document    string      `db:"documento" json:"documento"`
	FirstName   string      `db:"nombre" json:"nombre"`
	LastName    string      `db:"apellido" json:"apellido"`
	Appointment Appointment `json:"turno"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
	Deleted     bool        `db:"deleted" json:"-"`
	DeletedAt   *time.Time  `db:"deleted_at" json:"-"`
}

// HasAppointment reports whether a doctor is assigned. A record without one
// exists in the system but cannot be confirmed.
func (p *Patient) HasAppointment() bool {
	return strings.TrimSpace(p.Appointment.Doctor) != ""
}

// LookupStatus is the outcome of looking a document up.
type LookupStatus int

const (
	LookupNotFound LookupStatus = iota
	LookupFoundNoAppointment
	LookupFoundWithAppointment
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFoundNoAppointment:
		return "FOUND_NO_APPOINTMENT"
	case LookupFoundWithAppointment:
		return "FOUND_WITH_APPOINTMENT"
	default:
		return "NOT_FOUND"
	}
}

func statusOf(p *Patient) LookupStatus {
	switch {
	case p == nil:
		return LookupNotFound
	case p.HasAppointment():
		return LookupFoundWithAppointment
	default:
		return LookupFoundNoAppointment
	}
}
