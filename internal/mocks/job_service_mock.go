package mocks

import (
	"context"

	"github.com/SNU-SE/analysisq/internal/dto"
	"github.com/SNU-SE/analysisq/internal/job"
	"github.com/stretchr/testify/mock"
)

type JobServiceMock struct {
	mock.Mock
}

var _ job.JobServiceInterface = (*JobServiceMock)(nil)

func (m *JobServiceMock) CreateJob(ctx context.Context, req *dto.AnalyzeRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *JobServiceMock) GetJobStatus(ctx context.Context, id string) (*dto.JobStatusResponse, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.JobStatusResponse)
	return resp, args.Error(1)
}

func (m *JobServiceMock) CancelJob(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobServiceMock) RetryJob(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *JobServiceMock) QueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error) {
	args := m.Called(ctx)

	resp, _ := args.Get(0).(*dto.QueueStatusResponse)
	return resp, args.Error(1)
}

func (m *JobServiceMock) Healthy(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
