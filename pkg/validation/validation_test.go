package validation

import (
	"strings"
	"testing"
	"unicode"
)

func TestNormalizeDocument(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1234567", "1234567"},
		{"123-4567", "1234567"},
		{"12.345.678", "12345678"},
		{" 20 123 456 ", "20123456"},
		{"abc", ""},
		{"", ""},
		{"DNI: 30.111.222", "30111222"},
		{"١٢٣٤٥٦٧", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDocument(tt.in); got != tt.want {
			t.Errorf("NormalizeDocument(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDocument_DigitsOnlyAndIdempotent(t *testing.T) {
	inputs := []string{
		"", "0", "123-456-7890", "a1b2c3d4e5f6g7", "  99 99 99 99 ", "x\x00y7\n8\t9",
		"+54 (387) 421-0000", "ñandú 4455667", "🙂1234567🙂",
	}
	for _, in := range inputs {
		once := NormalizeDocument(in)
		for _, r := range once {
			if !unicode.IsDigit(r) || r > '9' {
				t.Errorf("NormalizeDocument(%q) = %q contains non-digit %q", in, once, r)
			}
		}
		if twice := NormalizeDocument(once); twice != once {
			t.Errorf("NormalizeDocument not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestIsValidDocument(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"123-4567", true},
		{"1234567", true},
		{"1234567890", true},
		{"123456", false},
		{"12345678901", false},
		{"123", false},
		{"", false},
		{"99999999", true},
		{"12.345.678", true},
	}
	for _, tt := range tests {
		if got := IsValidDocument(tt.in); got != tt.want {
			t.Errorf("IsValidDocument(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsValidDepartment(t *testing.T) {
	for _, code := range []string{"pb", "PB", "pp", "Pp", "2p", "3P", " pb "} {
		if !IsValidDepartment(code) {
			t.Errorf("expected %q to be a valid department", code)
		}
	}
	for _, code := range []string{"", "4p", "planta baja", "p"} {
		if IsValidDepartment(code) {
			t.Errorf("expected %q to be an invalid department", code)
		}
	}
}

func TestDepartmentFloor(t *testing.T) {
	if got := DepartmentFloor("PB"); got != "Planta Baja" {
		t.Errorf("expected Planta Baja, got %q", got)
	}
	if got := DepartmentFloor("3p"); got != "Tercer Piso" {
		t.Errorf("expected Tercer Piso, got %q", got)
	}
	if got := DepartmentFloor("9p"); got != "" {
		t.Errorf("expected empty floor for unknown code, got %q", got)
	}
}

func TestIsValidState(t *testing.T) {
	for _, s := range States() {
		if !IsValidState(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []string{"", "Pendiente", "done", "cancelled"} {
		if IsValidState(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestFitsLength(t *testing.T) {
	if !FitsLength(strings.Repeat("a", MaxFloorLength), MaxFloorLength) {
		t.Error("expected value at the limit to fit")
	}
	if FitsLength(strings.Repeat("a", MaxFloorLength+1), MaxFloorLength) {
		t.Error("expected value over the limit not to fit")
	}
	// Counted in characters, not bytes.
	if !FitsLength(strings.Repeat("ñ", MaxFloorLength), MaxFloorLength) {
		t.Error("expected multi-byte characters to count once")
	}
}
