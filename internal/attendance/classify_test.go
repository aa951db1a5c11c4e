package attendance

import "testing"

func mustClock(t *testing.T, s string) ClockTime {
	t.Helper()
	c, err := ParseClockTime(s)
	if err != nil {
		t.Fatalf("ParseClockTime(%q): %v", s, err)
	}
	return c
}

func morningShift(t *testing.T) *Shift {
	return &Shift{
		Start:       mustClock(t, "08:00"),
		LateAfter:   mustClock(t, "08:30"),
		AbsentAfter: mustClock(t, "09:00"),
	}
}

func TestClassify_Student(t *testing.T) {
	shift := morningShift(t)

	tests := []struct {
		punch string
		want  Status
	}{
		{"07:55", StatusPresent},
		{"08:00", StatusPresent}, // start boundary is inclusive
		{"08:01", StatusLate},
		{"08:15", StatusLate},
		{"08:30", StatusLate}, // late threshold boundary is inclusive
		{"08:45", StatusLate},
		{"09:00", StatusLate}, // cutoff is exclusive, not yet absent
		{"09:01", StatusAbsent},
		{"09:10", StatusAbsent},
		{"23:59", StatusAbsent},
	}
	for _, tt := range tests {
		t.Run(tt.punch, func(t *testing.T) {
			got := Classify(shift, mustClock(t, tt.punch), KindStudent)
			if got != tt.want {
				t.Errorf("Classify(student, %s) = %s, want %s", tt.punch, got, tt.want)
			}
		})
	}
}

func TestClassify_StaffNeverAbsent(t *testing.T) {
	shift := morningShift(t)

	tests := []struct {
		punch string
		want  Status
	}{
		{"07:30", StatusPresent},
		{"08:00", StatusPresent},
		{"08:45", StatusLate},
		{"09:00", StatusLate},
		{"09:01", StatusLate}, // past the cutoff staff is still late, never absent
		{"11:30", StatusLate},
	}
	for _, tt := range tests {
		t.Run(tt.punch, func(t *testing.T) {
			got := Classify(shift, mustClock(t, tt.punch), KindStaff)
			if got != tt.want {
				t.Errorf("Classify(staff, %s) = %s, want %s", tt.punch, got, tt.want)
			}
		})
	}
}

func TestClassify_NoShiftDefaultsPresent(t *testing.T) {
	for _, kind := range []Kind{KindStudent, KindStaff} {
		if got := Classify(nil, mustClock(t, "14:45"), kind); got != StatusPresent {
			t.Errorf("Classify(%s, no shift) = %s, want present", kind, got)
		}
	}
}

func TestLateMinutes(t *testing.T) {
	shift := morningShift(t)

	tests := []struct {
		name   string
		shift  *Shift
		punch  string
		status Status
		want   int
	}{
		{"on time", shift, "07:55", StatusPresent, 0},
		{"late 45", shift, "08:45", StatusLate, 45},
		{"late at threshold", shift, "08:30", StatusLate, 30},
		{"absent not counted", shift, "09:30", StatusAbsent, 0},
		{"no shift", nil, "08:45", StatusPresent, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LateMinutes(tt.shift, mustClock(t, tt.punch), tt.status)
			if got != tt.want {
				t.Errorf("LateMinutes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{in: "08:30", want: 510},
		{in: "08:30:45", want: 510},
		{in: "00:00", want: 0},
		{in: "23:59", want: 1439},
		{in: "8:30", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClockTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClockTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseClockTime(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
