package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/acoustic.report/internal/config"
	"github.com/banshee-data/acoustic.report/internal/echogram"
	"github.com/banshee-data/acoustic.report/internal/export"
	"github.com/banshee-data/acoustic.report/internal/fsutil"
	"github.com/banshee-data/acoustic.report/internal/integrator"
	"github.com/banshee-data/acoustic.report/internal/monitoring"
	"github.com/banshee-data/acoustic.report/internal/report"
	"github.com/banshee-data/acoustic.report/internal/reportdb"
	"github.com/banshee-data/acoustic.report/internal/timeutil"
	"github.com/banshee-data/acoustic.report/internal/version"
)

// Options wires one report run. Zero values select the process
// environment, the OS filesystem, the real clock and no metrics.
type Options struct {
	// ConfigPath is an optional JSON config. Environment variables
	// override it.
	ConfigPath string
	Lookup     config.LookupFunc

	FS      fsutil.FileSystem
	Clock   timeutil.Clock
	Logf    monitoring.Logf
	Metrics *monitoring.Metrics
}

// Result summarizes a finished run.
type Result struct {
	// Mode is "new", "append" or "empty".
	Mode     string
	Run      *reportdb.Run
	Exported []string
}

// Software returns the name recorded in the Software attribute.
func Software() string {
	return version.String("reportgen")
}

// Run integrates the configured inputs, persists the bins to the report
// store and writes the requested exports of the stored report. Nothing is
// persisted or exported when the integration fails.
func Run(ctx context.Context, o Options) (*Result, error) {
	logf := monitoring.Prefixed(o.Logf, "reportgen")
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}

	res, err := run(ctx, o, logf)
	switch {
	case err != nil:
		o.Metrics.RunCompleted("failed")
	default:
		o.Metrics.RunCompleted(res.Mode)
	}
	return res, err
}

func run(ctx context.Context, o Options, logf monitoring.Logf) (*Result, error) {
	job, err := loadJob(o)
	if err != nil {
		return nil, err
	}
	job.Params.Logf = o.Logf
	job.Params.Metrics = o.Metrics

	in, err := loadInputs(o.FS, job)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	db, err := reportdb.Open(job.Output, reportdb.WithClock(o.Clock), reportdb.WithLogger(o.Logf))
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}
	defer db.Close()

	prior, err := db.Prior(ctx)
	if err != nil {
		return nil, err
	}
	e := in.Echogram
	plan := report.PlanRun(prior, e.PingTimes[0], e.LastTime())
	logf("%s run over %s .. %s", plan.Mode(), plan.From.UTC(), plan.To.UTC())
	if plan.Empty() {
		logf("no pings past the stored report")
		return &Result{Mode: "empty"}, nil
	}
	clipped, ok := plan.Clip(in)
	if !ok {
		logf("no pings in the planned span")
		return &Result{Mode: "empty"}, nil
	}
	plan.Anchor(&job.Params)

	grid, err := integrator.Run(ctx, clipped, job.Params)
	if plan.Append && errors.Is(err, integrator.ErrInsufficientSpan) {
		// The new pings do not complete a bin yet; a later run picks
		// them up.
		logf("waiting for more pings: %v", err)
		return &Result{Mode: "empty"}, nil
	}
	if err != nil {
		return nil, err
	}

	product := report.Finalize(grid, report.Meta{LocalID: job.LocalID, Software: Software()})
	stored, err := db.WriteReport(ctx, product, reportdb.RunMeta{Mode: plan.Mode(), Source: job.DataInput})
	if err != nil {
		return nil, err
	}
	res := &Result{Mode: plan.Mode(), Run: stored}

	targets := export.Targets{CSV: job.CSV, PNG: job.PNG, HTML: job.HTML}
	if targets.Empty() {
		return res, nil
	}
	full, err := db.ReadReport(ctx)
	if err != nil {
		return res, err
	}
	res.Exported, err = export.Write(o.FS, targets, full, o.Logf)
	return res, err
}

func loadJob(o Options) (*config.Job, error) {
	cfg := config.EmptyReportConfig()
	if o.ConfigPath != "" {
		fileCfg, err := config.LoadReportConfigFS(o.FS, o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}
	if err := cfg.ApplyEnv(o.Lookup); err != nil {
		return nil, err
	}
	return cfg.Resolve()
}

func loadInputs(fsys fsutil.FileSystem, job *config.Job) (integrator.Inputs, error) {
	var in integrator.Inputs
	var err error
	if in.Echogram, err = echogram.LoadEchogram(fsys, job.DataInput); err != nil {
		return in, err
	}
	if in.Predictions, err = echogram.LoadPredictions(fsys, job.PredInput); err != nil {
		return in, err
	}
	if job.BottomInput != "" {
		if in.Bottom, err = echogram.LoadBottom(fsys, job.BottomInput); err != nil {
			return in, err
		}
	}
	return in, nil
}
