package scheduler

import (
	"fmt"
	"time"

	"reaperd/internal/eventstore"
)

const messageTimeFormat = "2006-01-02 15:04"

func targetDesc(rec eventstore.Record) string {
	if rec.TargetName != "" {
		return fmt.Sprintf("%s (%s)", rec.TargetID, rec.TargetName)
	}
	return rec.TargetID
}

func reminderText(rec eventstore.Record) string {
	return fmt.Sprintf("Reminder: container %s will be deleted on %s. Cancel the scheduled deletion if you still need it.",
		targetDesc(rec), rec.ExecuteAt.Format(messageTimeFormat))
}

func confirmRequestText(rec eventstore.Record) string {
	return fmt.Sprintf("Container %s is due for deletion. Confirm to proceed; without a response it will be deleted automatically.",
		targetDesc(rec))
}

func completedText(rec eventstore.Record) string {
	return fmt.Sprintf("Container %s has been deleted as scheduled (requested by %s on %s).",
		targetDesc(rec), rec.RequestedBy, rec.CreatedAt.Format(messageTimeFormat))
}

func cancelledText(rec eventstore.Record) string {
	return fmt.Sprintf("Scheduled deletion of container %s has been cancelled.", targetDesc(rec))
}

func gaveUpText(rec eventstore.Record) string {
	return fmt.Sprintf("Deletion of container %s failed after %d attempts and will not be retried. Last error: %s",
		targetDesc(rec), rec.Attempts, rec.LastError)
}

// SummaryText renders the human overview of pending deletions, one line per
// record.
func SummaryText(recs []eventstore.Record, now time.Time) string {
	if len(recs) == 0 {
		return "No containers are currently scheduled for deletion."
	}
	out := "The following containers are scheduled for deletion:\n"
	for _, r := range recs {
		out += fmt.Sprintf("- %s: %s, requested by %s [%s]\n",
			targetDesc(r), formatDeadline(r.ExecuteAt, now), r.RequestedBy, r.State)
	}
	return out
}

// formatDeadline renders an absolute deadline with a rough relative hint,
// e.g. "2025-06-03 12:00 (in 2d)".
func formatDeadline(at, now time.Time) string {
	d := at.Sub(now)
	switch {
	case d <= 0:
		return at.Format(messageTimeFormat) + " (overdue)"
	case d >= 48*time.Hour:
		return fmt.Sprintf("%s (in %dd)", at.Format(messageTimeFormat), int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%s (in %dh)", at.Format(messageTimeFormat), int(d.Hours()))
	default:
		return fmt.Sprintf("%s (in %dm)", at.Format(messageTimeFormat), int(d.Minutes()))
	}
}
