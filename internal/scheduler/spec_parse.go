package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecInterval SpecKind = iota
	SpecCron
)

// cronParser accepts both 5-field and 6-field (with seconds) specs plus
// descriptors like "@hourly" and "@every 5m".
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// PollSpec is the parsed poll schedule: either a plain interval ("60s",
// "5m") or a cron expression ("cron:*/5 * * * *", "@hourly").
type PollSpec struct {
	Kind     SpecKind
	Every    time.Duration
	Schedule cron.Schedule
	Raw      string
}

// Next returns the next tick time strictly after t.
func (p PollSpec) Next(t time.Time) time.Time {
	if p.Kind == SpecCron && p.Schedule != nil {
		return p.Schedule.Next(t)
	}
	return t.Add(p.Every)
}

// ParsePollSpec parses a poll schedule string. An empty string defaults to
// a 60 second interval.
func ParsePollSpec(raw string) (PollSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return PollSpec{Kind: SpecInterval, Every: time.Minute, Raw: "60s"}, nil
	}

	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		sched, err := cronParser.Parse(strings.TrimSpace(rest))
		if err != nil {
			return PollSpec{}, fmt.Errorf("invalid cron spec %q: %w", raw, err)
		}
		return PollSpec{Kind: SpecCron, Schedule: sched, Raw: s}, nil
	}
	if rest, ok := strings.CutPrefix(s, "interval:"); ok {
		s = strings.TrimSpace(rest)
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d < time.Second {
			return PollSpec{}, fmt.Errorf("poll interval %q is below 1s", raw)
		}
		return PollSpec{Kind: SpecInterval, Every: d, Raw: s}, nil
	}

	// Bare cron expressions and descriptors ("*/5 * * * *", "@hourly").
	if strings.Contains(s, " ") || strings.HasPrefix(s, "@") {
		sched, err := cronParser.Parse(s)
		if err != nil {
			return PollSpec{}, fmt.Errorf("invalid poll spec %q: %w", raw, err)
		}
		return PollSpec{Kind: SpecCron, Schedule: sched, Raw: s}, nil
	}

	return PollSpec{}, fmt.Errorf("unrecognized poll spec %q", raw)
}
