package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/reminder"
	"github.com/nhle/bizops/internal/scheduler"
)

func scanCmd(args []string, stdout io.Writer) error {
	fs, cfgPath := newFlagSet("scan")
	job := fs.String("job", model.JobAll, "scan to run: all, "+strings.Join(reminder.AllScans, ", "))
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := loadEnv(*cfgPath)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, e)
	if err != nil {
		return err
	}
	defer p.close()

	run, err := scanRunner(p.engine, *job)
	if err != nil {
		return err
	}

	// The locks live in the database or Redis, so a running server and
	// this command see each other.
	unlock, err := scheduler.LockAll(ctx, p.locker, scheduler.ScanLocks(p.engine, *job))
	if err != nil {
		return fmt.Errorf("locking %s: %w", *job, err)
	}
	defer unlock()

	results, err := run(ctx)
	for _, r := range results {
		fmt.Fprintf(stdout, "%-22s matched=%d reminded=%d failed=%d\n",
			r.Scan, r.Matched, r.Reminded, r.Failed)
	}
	return err
}

func scanRunner(e *reminder.Engine, job string) (func(context.Context) ([]reminder.Result, error), error) {
	if job == model.JobAll {
		return e.RunAll, nil
	}
	scan, ok := e.Scan(job)
	if !ok {
		return nil, fmt.Errorf("unknown scan %q", job)
	}
	return func(ctx context.Context) ([]reminder.Result, error) {
		res, err := scan(ctx)
		return []reminder.Result{res}, err
	}, nil
}
