package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Punch request outcomes as counted by the ingestion endpoint.
const (
	ResultAccepted       = "accepted"
	ResultDuplicate      = "duplicate"
	ResultUnknownCard    = "unknown_card"
	ResultPersonMissing  = "person_missing"
	ResultInvalidRequest = "invalid_request"
	ResultStoreError     = "store_error"
)

var (
	// Punches counts inbound punch requests by outcome.
	Punches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "punchclock_punches_total",
		Help: "Punch requests handled, by outcome.",
	}, []string{"result"})

	// Marked counts decisive first punches by kind and status.
	Marked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "punchclock_attendance_marked_total",
		Help: "Attendance records created by a first punch, by kind and status.",
	}, []string{"kind", "status"})
)
