package camera

import (
	"testing"
)

// ---------- Position ----------

func TestPosition_Other(t *testing.T) {
	if Selfie.Other() != Subject {
		t.Error("Selfie.Other() should be Subject")
	}
	if Subject.Other() != Selfie {
		t.Error("Subject.Other() should be Selfie")
	}
}

func TestPosition_String(t *testing.T) {
	if Selfie.String() != "selfie" {
		t.Errorf("Selfie.String() = %q", Selfie.String())
	}
	if Subject.String() != "subject" {
		t.Errorf("Subject.String() = %q", Subject.String())
	}
}

func TestParsePosition(t *testing.T) {
	cases := []struct {
		input   string
		want    Position
		wantErr bool
	}{
		{"selfie", Selfie, false},
		{"subject", Subject, false},
		{"", Selfie, true},
		{"Selfie", Selfie, true},
		{"front", Selfie, true},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParsePosition(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParsePosition(%q) expected error, got nil", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePosition(%q) error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ParsePosition(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

// ---------- FlashMode ----------

func TestParseFlashMode(t *testing.T) {
	cases := []struct {
		input   string
		want    FlashMode
		wantErr bool
	}{
		{"off", FlashOff, false},
		{"", FlashOff, false}, // unset config means off
		{"on", FlashOn, false},
		{"auto", FlashAuto, false},
		{"strobe", FlashOff, true},
	}
	for _, tc := range cases {
		got, err := ParseFlashMode(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFlashMode(%q) expected error, got nil", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFlashMode(%q) error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Errorf("ParseFlashMode(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestFlashMode_Cycle(t *testing.T) {
	if FlashOff.Cycle() != FlashOn {
		t.Error("off should cycle to on")
	}
	if FlashOn.Cycle() != FlashAuto {
		t.Error("on should cycle to auto")
	}
	if FlashAuto.Cycle() != FlashOff {
		t.Error("auto should cycle back to off")
	}
}

func TestFlashMode_CycleRoundTrip(t *testing.T) {
	mode := FlashOff
	for i := 0; i < 3; i++ {
		mode = mode.Cycle()
	}
	if mode != FlashOff {
		t.Errorf("three cycles should return to off, got %v", mode)
	}
}
