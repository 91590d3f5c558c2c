// Package validation holds the pure input checks shared by every kiosk
// endpoint. Nothing here touches the store.
package validation

import (
	"strings"
	"unicode/utf8"
)

const (
	MinDocumentDigits = 7
	MaxDocumentDigits = 10
)

// Maximum widths of the free-text columns, in characters.
const (
	MaxNameLength      = 255
	MaxDoctorLength    = 255
	MaxSpecialtyLength = 255
	MaxFloorLength     = 64
	MaxRoomLength      = 64
	MaxTimeLength      = 32
	MaxDateLength      = 32
)

// Department codes for the secretaría desks.
const (
	DepartmentGroundFloor = "pb"
	DepartmentFirstFloor  = "pp"
	DepartmentSecondFloor = "2p"
	DepartmentThirdFloor  = "3p"
)

// Service request states.
const (
	StatePending   = "pendiente"
	StateAttended  = "atendido"
	StateCancelled = "cancelado"
)

var departmentFloors = map[string]string{
	DepartmentGroundFloor: "Planta Baja",
	DepartmentFirstFloor:  "Primer Piso",
	DepartmentSecondFloor: "Segundo Piso",
	DepartmentThirdFloor:  "Tercer Piso",
}

var validStates = map[string]bool{
	StatePending:   true,
	StateAttended:  true,
	StateCancelled: true,
}

// Departments returns the department codes in floor order.
func Departments() []string {
	return []string{DepartmentGroundFloor, DepartmentFirstFloor, DepartmentSecondFloor, DepartmentThirdFloor}
}

// States returns the accepted service request states.
func States() []string {
	return []string{StatePending, StateAttended, StateCancelled}
}

// NormalizeDocument strips every non-digit character from input.
func NormalizeDocument(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for i := 0; i < len(input); i++ {
		if c := input[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsValidDocument reports whether input carries between 7 and 10 digits once
// separators and other characters are removed.
func IsValidDocument(input string) bool {
	n := len(NormalizeDocument(input))
	return n >= MinDocumentDigits && n <= MaxDocumentDigits
}

// NormalizeDepartment lower-cases and trims a department code.
func NormalizeDepartment(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// IsValidDepartment is case-insensitive.
func IsValidDepartment(code string) bool {
	_, ok := departmentFloors[NormalizeDepartment(code)]
	return ok
}

// DepartmentFloor returns the floor label shown on the kiosk for a department
// code, or "" when the code is unknown.
func DepartmentFloor(code string) string {
	return departmentFloors[NormalizeDepartment(code)]
}

// IsValidState is case-sensitive; states are stored exactly as listed.
func IsValidState(state string) bool {
	return validStates[state]
}

// FitsLength reports whether s holds at most max characters.
func FitsLength(s string, max int) bool {
	return utf8.RuneCountInString(s) <= max
}
