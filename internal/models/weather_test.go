package models

import (
	"testing"
	"time"
)

func TestNewWindow(t *testing.T) {
	end := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		duration  time.Duration
		wantErr   bool
		wantStart time.Time
	}{
		{
			name:      "one hour window",
			duration:  time.Hour,
			wantStart: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		},
		{
			name:      "five minute window",
			duration:  5 * time.Minute,
			wantStart: time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC),
		},
		{
			name:     "zero duration rejected",
			duration: 0,
			wantErr:  true,
		},
		{
			name:     "negative duration rejected",
			duration: -time.Minute,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWindow(end, tt.duration)

			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWindow() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if _, ok := err.(*InvalidParameterError); !ok {
					t.Errorf("error type = %T, want *InvalidParameterError", err)
				}
				return
			}

			if !w.Start.Equal(tt.wantStart) {
				t.Errorf("Start = %v, want %v", w.Start, tt.wantStart)
			}
			if !w.End.Equal(end) {
				t.Errorf("End = %v, want %v", w.End, end)
			}
			if w.Duration() != tt.duration {
				t.Errorf("Duration() = %v, want %v", w.Duration(), tt.duration)
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	end := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w, err := NewWindow(end, time.Hour)
	if err != nil {
		t.Fatalf("NewWindow() error = %v", err)
	}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"start is inside", w.Start, true},
		{"middle is inside", end.Add(-30 * time.Minute), true},
		{"end is outside (half-open)", end, false},
		{"before start is outside", w.Start.Add(-time.Second), false},
		{"after end is outside", end.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		raw      string
		want     Severity
		wantRank int
	}{
		{"critical", SeverityCritical, 1},
		{"high", SeverityHigh, 2},
		{"warning", SeverityHigh, 2},
		{"medium", SeverityMedium, 3},
		{"caution", SeverityMedium, 3},
		{"low", SeverityLow, 4},
		{"", SeverityUnknown, 4},
		{"catastrophic", SeverityUnknown, 4},
		{"CRITICAL", SeverityUnknown, 4}, // severity strings are stored lowercase
	}

	for _, tt := range tests {
		t.Run("severity "+tt.raw, func(t *testing.T) {
			got := ParseSeverity(tt.raw)
			if got != tt.want {
				t.Errorf("ParseSeverity(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if got.Rank() != tt.wantRank {
				t.Errorf("Rank() = %d, want %d", got.Rank(), tt.wantRank)
			}
		})
	}
}

func TestReadingHasAlertStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"alert", true},
		{"warning", true},
		{"critical", true},
		{"normal", false},
		{"", false},
		{"ok", false},
	}

	for _, tt := range tests {
		r := Reading{Status: tt.status}
		if got := r.HasAlertStatus(); got != tt.want {
			t.Errorf("HasAlertStatus() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestInvalidParameterError(t *testing.T) {
	err := &InvalidParameterError{
		Parameter: "anomaly_threshold",
		Value:     "9.0",
		Message:   "z-score threshold must be between 1.5 and 4.0",
	}

	want := `invalid anomaly_threshold "9.0": z-score threshold must be between 1.5 and 4.0`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if err.IsTransient() {
		t.Error("InvalidParameterError should not be transient")
	}
}
