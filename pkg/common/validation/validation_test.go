package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"positive value 1", 1, false},
		{"zero value", 0, true},
		{"negative value", -1, true},
		{"large negative", -1000000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive("fiber", "max_fibers", tt.value)

			if tt.wantError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !gferrors.IsValidationError(err) {
					t.Errorf("expected ValidationError, got %T", err)
				}
			} else if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateNonNegative(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 256, false},
		{"zero value", 0, false},
		{"negative value", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonNegative("fiber", "spare_fibers", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateNonNegative(%d) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidateAtLeast(t *testing.T) {
	if err := ValidateAtLeast("fiber", "stack_size", 64*1024, 16*1024); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := ValidateAtLeast("fiber", "stack_size", 1024, 16*1024)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var verr *gferrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !strings.Contains(verr.Hint, "16384") {
		t.Errorf("hint %q should mention the minimum", verr.Hint)
	}
}

func TestValidateDurations(t *testing.T) {
	tests := []struct {
		name      string
		fn        func(string, string, time.Duration) error
		value     time.Duration
		wantError bool
	}{
		{"positive accepts positive", ValidatePositiveDuration, 100 * time.Millisecond, false},
		{"positive rejects zero", ValidatePositiveDuration, 0, true},
		{"positive rejects negative", ValidatePositiveDuration, -time.Second, true},
		{"non-negative accepts zero", ValidateNonNegativeDuration, 0, false},
		{"non-negative accepts positive", ValidateNonNegativeDuration, time.Second, false},
		{"non-negative rejects negative", ValidateNonNegativeDuration, -time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn("watchdog", "interval", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateNotNil(t *testing.T) {
	if err := ValidateNotNil("hybrid", "engine", struct{}{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateNotNil("hybrid", "engine", nil); err == nil {
		t.Error("expected error for nil value")
	}
}

func TestValidateNotEmpty(t *testing.T) {
	if err := ValidateNotEmpty("scheduler", "id", "tick"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateNotEmpty("scheduler", "id", ""); err == nil {
		t.Error("expected error for empty value")
	}
}

func TestValidationErrorWrapping(t *testing.T) {
	errs := []error{
		ValidatePositive("test", "field", -1),
		ValidateNonNegative("test", "field", -1),
		ValidateAtLeast("test", "field", 0, 1),
		ValidatePositiveDuration("test", "field", 0),
		ValidateNonNegativeDuration("test", "field", -1),
		ValidateNotNil("test", "field", nil),
		ValidateNotEmpty("test", "field", ""),
	}

	for i, err := range errs {
		if !errors.Is(err, gferrors.ErrInvalidConfiguration) {
			t.Errorf("error %d (%v) should wrap ErrInvalidConfiguration", i, err)
		}
	}
}
