package scheduler

import (
	"testing"
	"time"
)

func TestParsePollSpecVariants(t *testing.T) {
	cases := []struct {
		in      string
		kind    SpecKind
		every   time.Duration
		wantErr bool
	}{
		{in: "", kind: SpecInterval, every: time.Minute},
		{in: "60s", kind: SpecInterval, every: time.Minute},
		{in: "5m", kind: SpecInterval, every: 5 * time.Minute},
		{in: "interval: 90s", kind: SpecInterval, every: 90 * time.Second},
		{in: "cron:*/5 * * * *", kind: SpecCron},
		{in: "*/5 * * * *", kind: SpecCron},
		{in: "0 */5 * * * *", kind: SpecCron}, // with seconds field
		{in: "@hourly", kind: SpecCron},
		{in: "@every 10m", kind: SpecCron},
		{in: "500ms", wantErr: true},
		{in: "cron:not a cron", wantErr: true},
		{in: "bogus", wantErr: true},
	}

	for _, tc := range cases {
		spec, err := ParsePollSpec(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParsePollSpec(%q): expected error, got %+v", tc.in, spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePollSpec(%q): %v", tc.in, err)
			continue
		}
		if spec.Kind != tc.kind {
			t.Errorf("ParsePollSpec(%q): kind = %d, want %d", tc.in, spec.Kind, tc.kind)
		}
		if tc.kind == SpecInterval && spec.Every != tc.every {
			t.Errorf("ParsePollSpec(%q): every = %v, want %v", tc.in, spec.Every, tc.every)
		}
		if tc.kind == SpecCron && spec.Schedule == nil {
			t.Errorf("ParsePollSpec(%q): nil cron schedule", tc.in)
		}
	}
}

func TestPollSpecNext(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)

	iv, err := ParsePollSpec("2m")
	if err != nil {
		t.Fatalf("ParsePollSpec: %v", err)
	}
	if got, want := iv.Next(base), base.Add(2*time.Minute); !got.Equal(want) {
		t.Fatalf("interval Next = %v, want %v", got, want)
	}

	cr, err := ParsePollSpec("cron:*/5 * * * *")
	if err != nil {
		t.Fatalf("ParsePollSpec: %v", err)
	}
	if got, want := cr.Next(base), time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("cron Next = %v, want %v", got, want)
	}
}
