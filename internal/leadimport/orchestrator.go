package leadimport

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadops/crm-api/internal/store"
)

var (
	ErrNotCSV       = errors.New("only .csv files can be imported")
	ErrEmptyFile    = errors.New("the file has no data rows")
	ErrNoValidRows  = errors.New("the file has no valid rows to import")
	ErrSubmitFailed = errors.New("import submission failed")
)

// CheckFileName rejects anything that is not a .csv before it is read.
func CheckFileName(name string) error {
	if !strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".csv") {
		return ErrNotCSV
	}
	return nil
}

type Preview struct {
	FileName string      `json:"fileName"`
	Counts   Counts      `json:"counts"`
	Sample   []ParsedRow `json:"sample"`
	Rows     []ParsedRow `json:"-"`
}

// Prepare parses and classifies a file without persisting anything.
func Prepare(name string, data []byte, previewSize int) (Preview, error) {
	if err := CheckFileName(name); err != nil {
		return Preview{}, err
	}
	parsed := ParseCSV(string(data))
	rows := Classify(parsed.Rows)
	if len(rows) == 0 {
		return Preview{}, ErrEmptyFile
	}

	if previewSize <= 0 {
		previewSize = 10
	}
	sample := rows
	if len(sample) > previewSize {
		sample = sample[:previewSize]
	}
	return Preview{
		FileName: filepath.Base(name),
		Counts:   Summarize(rows),
		Sample:   sample,
		Rows:     rows,
	}, nil
}

type JobSpec struct {
	FileName     string     `json:"fileName"`
	TotalRows    int        `json:"totalRows"`
	AcademicYear string     `json:"academicYear,omitempty"`
	CreatedBy    *uuid.UUID `json:"-"`
}

type Jobs interface {
	CreateJob(ctx context.Context, spec JobSpec) (uuid.UUID, error)
}

type Submitter interface {
	Submit(ctx context.Context, req Request) (Result, error)
}

// ProgressFunc receives coarse, fixed-step progress. It is an estimate and
// does not reflect how far the server has got.
type ProgressFunc func(percent int, stage string)

type Orchestrator struct {
	Jobs      Jobs
	Submitter Submitter
	UserID    *uuid.UUID
	Progress  ProgressFunc
	// Tick advances progress while waiting on the server. Zero disables it.
	Tick time.Duration
	// OnComplete runs after a successful import so cached views can be dropped.
	OnComplete func()
}

type RunResult struct {
	ImportID uuid.UUID `json:"importId"`
	Result
}

// Run creates the pending job, submits the valid rows and returns the
// server's counts. A failed submission is reported as one error wrapping
// ErrSubmitFailed; the pending job is left in place for inspection.
func (o *Orchestrator) Run(ctx context.Context, preview Preview, academicYear string) (RunResult, error) {
	valid := ValidRows(preview.Rows)
	if len(valid) == 0 {
		return RunResult{}, ErrNoValidRows
	}

	o.report(10, "creating job")
	importID, err := o.Jobs.CreateJob(ctx, JobSpec{
		FileName:     preview.FileName,
		TotalRows:    len(preview.Rows),
		AcademicYear: academicYear,
		CreatedBy:    o.UserID,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("create import job: %w", err)
	}

	o.report(30, "uploading")
	stop := o.tickProgress(30, 90)
	result, err := o.Submitter.Submit(ctx, Request{
		Rows:         valid,
		ImportID:     importID,
		UserID:       o.UserID,
		AcademicYear: academicYear,
	})
	stop()
	if err != nil {
		return RunResult{ImportID: importID}, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	o.report(100, "done")
	if o.OnComplete != nil {
		o.OnComplete()
	}
	return RunResult{ImportID: importID, Result: result}, nil
}

func (o *Orchestrator) report(percent int, stage string) {
	if o.Progress != nil {
		o.Progress(percent, stage)
	}
}

func (o *Orchestrator) tickProgress(from, ceiling int) func() {
	if o.Progress == nil || o.Tick <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(o.Tick)
		defer ticker.Stop()
		percent := from
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if percent < ceiling {
					percent += 10
					o.report(percent, "processing")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

type JobStore interface {
	CreateLeadImport(ctx context.Context, arg store.CreateLeadImportParams) (store.LeadImport, error)
}

// Local runs both halves in the API process.
type Local struct {
	Store     JobStore
	Processor *Processor
}

func (l Local) CreateJob(ctx context.Context, spec JobSpec) (uuid.UUID, error) {
	var year *string
	if y := strings.TrimSpace(spec.AcademicYear); y != "" {
		year = &y
	}
	job, err := l.Store.CreateLeadImport(ctx, store.CreateLeadImportParams{
		FileName:     spec.FileName,
		TotalRows:    int32(spec.TotalRows),
		AcademicYear: year,
		CreatedBy:    spec.CreatedBy,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

func (l Local) Submit(ctx context.Context, req Request) (Result, error) {
	return l.Processor.Process(ctx, req)
}
