package httpapi

import (
	"time"

	"reaperd/internal/eventbus"
	"reaperd/internal/notifier"
)

// Config controls the optional management HTTP API.
//
// Security: prefer binding to localhost (default). If binding to a
// non-loopback address, set Token.
type Config struct {
	Enabled bool
	Addr    string
	Token   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ScheduleRequest struct {
	TargetID      string `json:"target_id" binding:"required"`
	TargetName    string `json:"target_name"`
	RequestedBy   string `json:"requested_by" binding:"required"`
	OriginChannel string `json:"origin_channel"`
}

type ConfirmRequest struct {
	ConfirmedBy string `json:"confirmed_by"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
	Count   int    `json:"count"`
}

type StatusResponse struct {
	Pending       int                    `json:"pending"`
	Events        []eventbus.Event       `json:"events"`
	Notifications []notifier.HistoryItem `json:"notifications"`
}
