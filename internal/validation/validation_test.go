package validation

import (
	"strings"
	"testing"

	"github.com/KevinKickass/PumpFleet/internal/types"
)

func TestCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  FieldErrors
	}{
		{"valid", Credentials{"admin", "888888"}, nil},
		{"empty", Credentials{}, FieldErrors{
			"username": "Username is required",
			"password": "Password is required",
		}},
		{"short", Credentials{"ab", "12345"}, FieldErrors{
			"username": "Username must be at least 3 characters",
			"password": "Password must be at least 6 characters",
		}},
		{"long", Credentials{strings.Repeat("u", 51), strings.Repeat("p", 101)}, FieldErrors{
			"username": "Username must not exceed 50 characters",
			"password": "Password must not exceed 100 characters",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.creds)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Struct() error = %v, want nil", err)
				}
				return
			}

			got, ok := FromError(err)
			if !ok {
				t.Fatalf("Struct() error = %v, not field errors", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for field, msg := range tt.want {
				if got[field] != msg {
					t.Errorf("%s: got %q, want %q", field, got[field], msg)
				}
			}
		})
	}
}

func TestPumpForm(t *testing.T) {
	form := types.PumpForm{
		Name:     "",
		Type:     "Turbine",
		Area:     "North",
		Latitude: 120,
		FlowRate: -1,
		Status:   types.PumpStatusOperational,
	}

	got, ok := FromError(Struct(form))
	if !ok {
		t.Fatal("expected field errors")
	}

	want := FieldErrors{
		"name":      "Name is required",
		"type":      "Type must be one of Centrifugal, Submersible, Diaphragm, Rotary, Peristaltic",
		"latitude":  "Latitude must not exceed 90",
		"flow_rate": "Flow rate must be at least 0",
	}
	for field, msg := range want {
		if got[field] != msg {
			t.Errorf("%s: got %q, want %q", field, got[field], msg)
		}
	}
	if _, ok := got["area"]; ok {
		t.Error("valid area reported as error")
	}
}

func TestFieldErrors_ErrorIsSorted(t *testing.T) {
	err := FieldErrors{"b": "second", "a": "first"}
	if got := err.Error(); got != "first; second" {
		t.Errorf("Error() = %q", got)
	}
}
