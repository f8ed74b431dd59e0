package mocks

import (
	"context"
	"time"

	"github.com/SNU-SE/analysisq/internal/job"
	"github.com/SNU-SE/analysisq/internal/models"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

type JobRepoMock struct {
	mock.Mock
}

var _ job.JobRepoInterface = (*JobRepoMock)(nil)

func (m *JobRepoMock) Create(ctx context.Context, j *models.AnalysisJob) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *JobRepoMock) Get(ctx context.Context, id string) (*models.AnalysisJob, error) {
	args := m.Called(ctx, id)

	j, _ := args.Get(0).(*models.AnalysisJob)
	return j, args.Error(1)
}

func (m *JobRepoMock) Claim(ctx context.Context, id string, now time.Time) (*models.AnalysisJob, error) {
	args := m.Called(ctx, id, now)

	j, _ := args.Get(0).(*models.AnalysisJob)
	return j, args.Error(1)
}

func (m *JobRepoMock) MarkCompleted(ctx context.Context, id string, attempts int, result datatypes.JSON) error {
	args := m.Called(ctx, id, attempts, result)
	return args.Error(0)
}

func (m *JobRepoMock) MarkFailed(ctx context.Context, id string, attempts int, errMsg, errKind string) error {
	args := m.Called(ctx, id, attempts, errMsg, errKind)
	return args.Error(0)
}

func (m *JobRepoMock) RetryLater(ctx context.Context, id string, attempts int, notBefore time.Time) error {
	args := m.Called(ctx, id, attempts, notBefore)
	return args.Error(0)
}

func (m *JobRepoMock) CancelPending(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) MarkCancelled(ctx context.Context, id string, attempts int) error {
	args := m.Called(ctx, id, attempts)
	return args.Error(0)
}

func (m *JobRepoMock) RequestCancel(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) CancelRequested(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) ResetForRetry(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobRepoMock) UpdateProgress(ctx context.Context, id string, attempts, progress int) error {
	args := m.Called(ctx, id, attempts, progress)
	return args.Error(0)
}

func (m *JobRepoMock) Release(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobRepoMock) AggregateCounts(ctx context.Context, now time.Time) (*job.QueueCounts, error) {
	args := m.Called(ctx, now)

	counts, _ := args.Get(0).(*job.QueueCounts)
	return counts, args.Error(1)
}

func (m *JobRepoMock) ListStuckProcessing(ctx context.Context, olderThan time.Time) ([]models.AnalysisJob, error) {
	args := m.Called(ctx, olderThan)

	jobs, _ := args.Get(0).([]models.AnalysisJob)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) ListDroppedPending(ctx context.Context, now, olderThan time.Time) ([]models.AnalysisJob, error) {
	args := m.Called(ctx, now, olderThan)

	jobs, _ := args.Get(0).([]models.AnalysisJob)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
