package recognition

import "testing"

func TestValidPlate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		plate string
		want  bool
	}{
		{"ABC1234", true},  // legacy
		{"XYZ0001", true},  // legacy
		{"ABC1D23", true},  // Mercosul
		{"BRA2E19", true},  // Mercosul
		{"AB1234", false},  // too few letters
		{"ABCD123", false}, // too many letters
		{"ABC12345", false},
		{"ABC123", false},
		{"abc1234", false}, // lowercase is rejected, normalization happens upstream
		{"ABC 1234", false},
		{"ABC-1234", false},
		{"1231234", false},
		{"ABC1DE3", false}, // second letter block too long for Mercosul
		{"", false},
	}

	for _, tc := range cases {
		if got := ValidPlate(tc.plate); got != tc.want {
			t.Errorf("ValidPlate(%q): got %v, want %v", tc.plate, got, tc.want)
		}
	}
}
