package scheduler

import (
	"context"
	"time"

	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/reminder"
)

// ReminderJobs builds the jobs for the reminder engine from config. In
// single mode one hourly job runs every enabled scan and holds each
// scan's lock, so it never overlaps a manual run of the same scan; in
// split mode each enabled scan gets its own cadence.
func ReminderJobs(e *reminder.Engine, cfg model.ReminderConfig) []Job {
	if cfg.Mode == model.ModeSingle {
		job := cfg.Jobs[model.JobAll]
		interval := job.Interval()
		if interval <= 0 {
			interval = defaultSingleInterval
		}
		return []Job{{
			Name:       model.JobAll,
			Interval:   interval,
			RunOnStart: job.RunOnStart,
			Locks:      e.Scans(),
			Run: func(ctx context.Context) error {
				_, err := e.RunAll(ctx)
				return err
			},
		}}
	}

	var jobs []Job
	for _, name := range reminder.AllScans {
		jc, ok := cfg.Jobs[name]
		if !ok || !jc.Enabled || jc.Interval() <= 0 {
			continue
		}
		run, _ := e.Scan(name)
		jobs = append(jobs, Job{
			Name:       name,
			Interval:   jc.Interval(),
			RunOnStart: jc.RunOnStart,
			Run: func(ctx context.Context) error {
				_, err := run(ctx)
				return err
			},
		})
	}
	return jobs
}

const defaultSingleInterval = time.Hour

// ScanLocks returns the lock keys a manual run of job must hold: every
// scan RunAll covers for "all", the scan itself otherwise.
func ScanLocks(e *reminder.Engine, job string) []string {
	if job == model.JobAll {
		return e.Scans()
	}
	return []string{job}
}
