package servicelog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("service log not found")
	ErrInvalid  = errors.New("invalid service log")
)

// ServiceLog is a desk request raised from the kiosk. It maps to the
// service_logs table.
type ServiceLog struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Document   string     `db:"documento" json:"documento"`
	Department string     `db:"secretaria" json:"secretaria"`
	Floor      string     `db:"piso" json:"piso"`
	State      string     `db:"estado" json:"estado"`
	Timestamp  time.Time  `db:"timestamp" json:"timestamp"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	Deleted    bool       `db:"deleted" json:"-"`
	DeletedAt  *time.Time `db:"deleted_at" json:"-"`
}

// Filter narrows Recent. Empty fields match everything.
type Filter struct {
	Department string
	State      string
	Limit      int
}

// Stats aggregates non-deleted requests since a lower bound. Every field is
// computed from the same snapshot, so the per-department and per-day counts
// each sum to Total.
type Stats struct {
	Total        int            `json:"total_gestiones"`
	ByDepartment map[string]int `json:"por_secretaria"`
	ByDay        map[string]int `json:"por_dia"`
	Recent       []*ServiceLog  `json:"gestiones_recientes"`
}

const (
	// StatsRecentLimit is the number of records in Stats.Recent.
	StatsRecentLimit = 10
	// DayLayout formats Stats.ByDay keys, in UTC.
	DayLayout = "2006-01-02"
	// ByDocumentLimit caps ListByDocument.
	ByDocumentLimit = 100
)
