package leadimport

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadops/crm-api/internal/store/storetest"
)

const previewCSV = "Name,Email,Phone\n" +
	"Ann,ann@x.com,1\n" +
	"Ann Twin,ANN@x.com,2\n" +
	"Bad,nope,3\n" +
	"Dee,dee@x.com,4\n"

func TestCheckFileName(t *testing.T) {
	assert.NoError(t, CheckFileName("leads.CSV"))
	assert.ErrorIs(t, CheckFileName("leads.xlsx"), ErrNotCSV)
	assert.ErrorIs(t, CheckFileName("csv"), ErrNotCSV)
}

func TestPrepare(t *testing.T) {
	preview, err := Prepare("uploads/leads.csv", []byte(previewCSV), 2)
	require.NoError(t, err)

	assert.Equal(t, "leads.csv", preview.FileName)
	assert.Equal(t, Counts{Total: 4, Valid: 2, Invalid: 1, Duplicate: 1}, preview.Counts)
	assert.Len(t, preview.Sample, 2)
	assert.Len(t, preview.Rows, 4)
}

func TestPrepareRejectsBadInput(t *testing.T) {
	_, err := Prepare("leads.txt", []byte(previewCSV), 0)
	assert.ErrorIs(t, err, ErrNotCSV)

	_, err = Prepare("leads.csv", []byte("Name,Email\n"), 0)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

type fakeJobs struct {
	id    uuid.UUID
	specs []JobSpec
	err   error
}

func (f *fakeJobs) CreateJob(_ context.Context, spec JobSpec) (uuid.UUID, error) {
	f.specs = append(f.specs, spec)
	return f.id, f.err
}

type fakeSubmitter struct {
	requests []Request
	result   Result
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, req Request) (Result, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func TestOrchestratorRunSubmitsValidRows(t *testing.T) {
	preview, err := Prepare("leads.csv", []byte(previewCSV), 0)
	require.NoError(t, err)

	userID := uuid.New()
	jobs := &fakeJobs{id: uuid.New()}
	submitter := &fakeSubmitter{result: Result{Success: true, SuccessCount: 2}}
	var progress []int
	completed := false
	orch := &Orchestrator{
		Jobs:       jobs,
		Submitter:  submitter,
		UserID:     &userID,
		Progress:   func(percent int, _ string) { progress = append(progress, percent) },
		OnComplete: func() { completed = true },
	}

	out, err := orch.Run(context.Background(), preview, "2025/26")
	require.NoError(t, err)

	assert.Equal(t, jobs.id, out.ImportID)
	assert.Equal(t, 2, out.SuccessCount)
	assert.True(t, completed)
	assert.Equal(t, []int{10, 30, 100}, progress)

	require.Len(t, jobs.specs, 1)
	assert.Equal(t, JobSpec{FileName: "leads.csv", TotalRows: 4, AcademicYear: "2025/26", CreatedBy: &userID}, jobs.specs[0])

	require.Len(t, submitter.requests, 1)
	req := submitter.requests[0]
	assert.Equal(t, jobs.id, req.ImportID)
	require.Len(t, req.Rows, 2)
	assert.Equal(t, "Ann", req.Rows[0].FullName)
	assert.Equal(t, "Dee", req.Rows[1].FullName)
}

func TestOrchestratorRunWithoutValidRows(t *testing.T) {
	preview, err := Prepare("leads.csv", []byte("Name,Email\nBad,nope\n"), 0)
	require.NoError(t, err)

	jobs := &fakeJobs{id: uuid.New()}
	orch := &Orchestrator{Jobs: jobs, Submitter: &fakeSubmitter{}}
	_, err = orch.Run(context.Background(), preview, "")
	assert.ErrorIs(t, err, ErrNoValidRows)
	assert.Empty(t, jobs.specs)
}

func TestOrchestratorSubmitFailureKeepsJobID(t *testing.T) {
	preview, err := Prepare("leads.csv", []byte(previewCSV), 0)
	require.NoError(t, err)

	jobs := &fakeJobs{id: uuid.New()}
	completed := false
	orch := &Orchestrator{
		Jobs:       jobs,
		Submitter:  &fakeSubmitter{err: errors.New("gateway timeout")},
		OnComplete: func() { completed = true },
	}

	out, err := orch.Run(context.Background(), preview, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.Contains(t, err.Error(), "gateway timeout")
	assert.Equal(t, jobs.id, out.ImportID)
	assert.False(t, completed)
}

func TestOrchestratorCreateJobFailure(t *testing.T) {
	preview, err := Prepare("leads.csv", []byte(previewCSV), 0)
	require.NoError(t, err)

	submitter := &fakeSubmitter{}
	orch := &Orchestrator{Jobs: &fakeJobs{err: errors.New("db down")}, Submitter: submitter}
	_, err = orch.Run(context.Background(), preview, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubmitFailed)
	assert.Empty(t, submitter.requests)
}

func TestLocalRunsEndToEnd(t *testing.T) {
	mem := storetest.NewMemory()
	mem.SetSources("other")
	preview, err := Prepare("leads.csv", []byte(previewCSV), 0)
	require.NoError(t, err)

	local := Local{Store: mem, Processor: newTestProcessor(mem)}
	orch := &Orchestrator{Jobs: local, Submitter: local}
	out, err := orch.Run(context.Background(), preview, "2025/26")
	require.NoError(t, err)

	assert.Equal(t, 2, out.SuccessCount)
	job, err := mem.GetLeadImport(context.Background(), out.ImportID)
	require.NoError(t, err)
	assert.Equal(t, "completed", job.Status)
	require.NotNil(t, job.AcademicYear)
	assert.Equal(t, "2025/26", *job.AcademicYear)
	assert.Equal(t, int32(2), job.SkippedRows, "invalid and duplicate rows never reach the server")
}
