package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts scan activity. A nil registerer yields working but
// unregistered collectors.
type Metrics struct {
	scans         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	emails        *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics creates the reminder collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		scans: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizops_reminder_scans_total",
				Help: "Reminder scan runs by outcome",
			},
			[]string{"scan", "outcome"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizops_reminder_notifications_total",
				Help: "Notifications created by reminder scans",
			},
			[]string{"type"},
		),
		emails: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bizops_reminder_emails_total",
				Help: "Reminder emails by delivery result",
			},
			[]string{"result"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bizops_reminder_scan_duration_seconds",
				Help:    "Duration of reminder scans",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 15, 60},
			},
			[]string{"scan"},
		),
	}
}
