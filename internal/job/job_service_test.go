package job_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/SNU-SE/analysisq/common"
	"github.com/SNU-SE/analysisq/internal/config"
	"github.com/SNU-SE/analysisq/internal/dto"
	"github.com/SNU-SE/analysisq/internal/job"
	"github.com/SNU-SE/analysisq/internal/mocks"
	"github.com/SNU-SE/analysisq/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func newTestService(repo *mocks.JobRepoMock, br *mocks.BrokerMock) *job.JobService {
	return job.NewJobService(repo, br, 3, zap.NewNop())
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var apiErr common.APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Status
}

func TestJobService_CreateJob(t *testing.T) {
	validReq := func() *dto.AnalyzeRequest {
		return &dto.AnalyzeRequest{
			PaperID:   "paper-42",
			OwnerID:   "owner-7",
			Providers: []string{"openai", "anthropic"},
		}
	}

	tests := []struct {
		name         string
		req          *dto.AnalyzeRequest
		setupMock    func(*mocks.JobRepoMock, *mocks.BrokerMock)
		setupCtx     func() context.Context
		wantErr      bool
		errContains  string
		wantStatus   int
		skipRepoCall bool
	}{
		{
			name: "successful submission",
			req:  validReq(),
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(j *models.AnalysisJob) bool {
					return uuid.Validate(j.ID) == nil &&
						j.PaperID == "paper-42" &&
						j.OwnerID == "owner-7" &&
						j.Status == string(config.JobStatePending) &&
						j.Priority == 2 &&
						j.MaxAttempts == 3 &&
						j.Attempts == 0 &&
						!j.AvailableAt.IsZero() &&
						string(j.Providers) == `["openai","anthropic"]`
				})).Return(nil)
				b.On("Publish", mock.Anything, mock.AnythingOfType("string"), 2).Return(nil)
			},
			setupCtx: context.Background,
			wantErr:  false,
		},
		{
			name: "priority follows provider count",
			req: &dto.AnalyzeRequest{
				PaperID:   "paper-42",
				OwnerID:   "owner-7",
				Providers: []string{"openai", "anthropic", "xai", "gemini"},
			},
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(j *models.AnalysisJob) bool {
					return j.Priority == 4
				})).Return(nil)
				b.On("Publish", mock.Anything, mock.AnythingOfType("string"), 4).Return(nil)
			},
			setupCtx: context.Background,
			wantErr:  false,
		},
		{
			name: "unknown provider",
			req: &dto.AnalyzeRequest{
				PaperID:   "paper-42",
				OwnerID:   "owner-7",
				Providers: []string{"openai", "grok"},
			},
			setupMock:    func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {},
			setupCtx:     context.Background,
			wantErr:      true,
			errContains:  "unknown provider",
			wantStatus:   http.StatusBadRequest,
			skipRepoCall: true,
		},
		{
			name: "duplicate provider",
			req: &dto.AnalyzeRequest{
				PaperID:   "paper-42",
				OwnerID:   "owner-7",
				Providers: []string{"openai", "openai"},
			},
			setupMock:    func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {},
			setupCtx:     context.Background,
			wantErr:      true,
			errContains:  "duplicate provider",
			wantStatus:   http.StatusBadRequest,
			skipRepoCall: true,
		},
		{
			name: "empty provider list",
			req: &dto.AnalyzeRequest{
				PaperID:   "paper-42",
				OwnerID:   "owner-7",
				Providers: []string{},
			},
			setupMock:    func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {},
			setupCtx:     context.Background,
			wantErr:      true,
			errContains:  "at least one provider",
			wantStatus:   http.StatusBadRequest,
			skipRepoCall: true,
		},
		{
			name: "repository error - database failure",
			req:  validReq(),
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Create", mock.Anything, mock.Anything).
					Return(errors.New("database connection failed"))
			},
			setupCtx:    context.Background,
			wantErr:     true,
			errContains: "failed to add job to database",
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name: "repository error - context deadline",
			req:  validReq(),
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Create", mock.Anything, mock.Anything).
					Return(context.DeadlineExceeded)
			},
			setupCtx:    context.Background,
			wantErr:     true,
			errContains: "request timeout",
			wantStatus:  http.StatusRequestTimeout,
		},
		{
			name: "publish failure does not fail the request",
			req:  validReq(),
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil)
				b.On("Publish", mock.Anything, mock.AnythingOfType("string"), 2).
					Return(errors.New("broker down"))
			},
			setupCtx: context.Background,
			wantErr:  false,
		},
		{
			name: "context canceled before repo call",
			req:  validReq(),
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
			},
			setupCtx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr:      true,
			errContains:  "request canceled",
			wantStatus:   http.StatusRequestTimeout,
			skipRepoCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(mocks.JobRepoMock)
			mockBroker := new(mocks.BrokerMock)
			tt.setupMock(mockRepo, mockBroker)

			s := newTestService(mockRepo, mockBroker)
			id, err := s.CreateJob(tt.setupCtx(), tt.req)

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				if tt.wantStatus != 0 {
					assert.Equal(t, tt.wantStatus, apiStatus(t, err))
				}
			} else {
				assert.NoError(t, err)
				assert.NoError(t, uuid.Validate(id), "returned id must be a uuid")
			}

			mockRepo.AssertExpectations(t)
			mockBroker.AssertExpectations(t)

			if tt.skipRepoCall {
				mockRepo.AssertNumberOfCalls(t, "Create", 0)
			}
		})
	}
}

func TestJobService_GetJobStatus(t *testing.T) {
	t.Run("maps the stored job onto the status surface", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)
		started := time.Now().Add(-time.Minute)
		completed := time.Now()

		mockRepo.On("Get", mock.Anything, "job-1").Return(&models.AnalysisJob{
			ID:          "job-1",
			Status:      string(config.JobStateCompleted),
			Progress:    100,
			Attempts:    2,
			MaxAttempts: 3,
			StartedAt:   &started,
			CompletedAt: &completed,
			Result:      datatypes.JSON([]byte(`{"summaries":{"openai":"ok"}}`)),
		}, nil)

		s := newTestService(mockRepo, mockBroker)
		resp, err := s.GetJobStatus(context.Background(), "job-1")

		require.NoError(t, err)
		assert.Equal(t, "job-1", resp.ID)
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, 100, resp.Progress)
		assert.Equal(t, 2, resp.Attempts)
		assert.Equal(t, 3, resp.MaxAttempts)
		assert.Empty(t, resp.Error)
		assert.JSONEq(t, `{"summaries":{"openai":"ok"}}`, string(resp.Result))
		assert.Equal(t, &started, resp.StartedAt)
	})

	t.Run("failed job exposes its error", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)

		mockRepo.On("Get", mock.Anything, "job-2").Return(&models.AnalysisJob{
			ID:        "job-2",
			Status:    string(config.JobStateFailed),
			Attempts:  1,
			Error:     "Unauthorized: invalid API key",
			ErrorKind: "permanent",
		}, nil)

		s := newTestService(mockRepo, mockBroker)
		resp, err := s.GetJobStatus(context.Background(), "job-2")

		require.NoError(t, err)
		assert.Equal(t, "failed", resp.Status)
		assert.Equal(t, "Unauthorized: invalid API key", resp.Error)
		assert.Empty(t, resp.Result)
	})

	t.Run("missing job maps to 404", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)

		mockRepo.On("Get", mock.Anything, "nope").
			Return(nil, fmt.Errorf("job nope: %w", job.ErrJobNotFound))

		s := newTestService(mockRepo, mockBroker)
		_, err := s.GetJobStatus(context.Background(), "nope")

		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, apiStatus(t, err))
	})
}

func TestJobService_CancelJob(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*mocks.JobRepoMock, *mocks.BrokerMock)
		want      bool
		wantErr   bool
	}{
		{
			name: "pending job cancels and leaves the broker",
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Get", mock.Anything, "job-1").Return(&models.AnalysisJob{
					ID:     "job-1",
					Status: string(config.JobStatePending),
				}, nil)
				m.On("CancelPending", mock.Anything, "job-1").Return(true, nil)
				b.On("Discard", mock.Anything, "job-1").Return(nil)
			},
			want: true,
		},
		{
			name: "pending job claimed mid-cancel falls back to the flag",
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Get", mock.Anything, "job-1").Return(&models.AnalysisJob{
					ID:     "job-1",
					Status: string(config.JobStatePending),
				}, nil)
				m.On("CancelPending", mock.Anything, "job-1").Return(false, nil)
				m.On("RequestCancel", mock.Anything, "job-1").Return(true, nil)
			},
			want: true,
		},
		{
			name: "processing job gets the cooperative flag",
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Get", mock.Anything, "job-1").Return(&models.AnalysisJob{
					ID:     "job-1",
					Status: string(config.JobStateProcessing),
				}, nil)
				m.On("RequestCancel", mock.Anything, "job-1").Return(true, nil)
			},
			want: true,
		},
		{
			name: "completed job reports nothing to cancel",
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Get", mock.Anything, "job-1").Return(&models.AnalysisJob{
					ID:     "job-1",
					Status: string(config.JobStateCompleted),
				}, nil)
			},
			want: false,
		},
		{
			name: "missing job reports nothing to cancel",
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Get", mock.Anything, "job-1").
					Return(nil, fmt.Errorf("job job-1: %w", job.ErrJobNotFound))
			},
			want: false,
		},
		{
			name: "repository failure surfaces as an error",
			setupMock: func(m *mocks.JobRepoMock, b *mocks.BrokerMock) {
				m.On("Get", mock.Anything, "job-1").
					Return(nil, errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(mocks.JobRepoMock)
			mockBroker := new(mocks.BrokerMock)
			tt.setupMock(mockRepo, mockBroker)

			s := newTestService(mockRepo, mockBroker)
			got, err := s.CancelJob(context.Background(), "job-1")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			mockRepo.AssertExpectations(t)
			mockBroker.AssertExpectations(t)
		})
	}
}

func TestJobService_RetryJob(t *testing.T) {
	t.Run("failed job re-queues under the same id", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)

		mockRepo.On("Get", mock.Anything, "job-1").Return(&models.AnalysisJob{
			ID:       "job-1",
			Status:   string(config.JobStateFailed),
			Priority: 3,
		}, nil)
		mockRepo.On("ResetForRetry", mock.Anything, "job-1").Return(nil)
		mockBroker.On("Publish", mock.Anything, "job-1", 3).Return(nil)

		s := newTestService(mockRepo, mockBroker)
		id, err := s.RetryJob(context.Background(), "job-1")

		require.NoError(t, err)
		assert.Equal(t, "job-1", id)
		mockRepo.AssertExpectations(t)
		mockBroker.AssertExpectations(t)
	})

	t.Run("non-failed job maps to 409", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)

		mockRepo.On("Get", mock.Anything, "job-1").Return(&models.AnalysisJob{
			ID:     "job-1",
			Status: string(config.JobStateProcessing),
		}, nil)

		s := newTestService(mockRepo, mockBroker)
		_, err := s.RetryJob(context.Background(), "job-1")

		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, apiStatus(t, err))
		mockRepo.AssertNumberOfCalls(t, "ResetForRetry", 0)
	})

	t.Run("missing job maps to 404", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)

		mockRepo.On("Get", mock.Anything, "job-1").
			Return(nil, fmt.Errorf("job job-1: %w", job.ErrJobNotFound))

		s := newTestService(mockRepo, mockBroker)
		_, err := s.RetryJob(context.Background(), "job-1")

		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, apiStatus(t, err))
	})

	t.Run("lost race on reset maps to 409", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)

		mockRepo.On("Get", mock.Anything, "job-1").Return(&models.AnalysisJob{
			ID:     "job-1",
			Status: string(config.JobStateFailed),
		}, nil)
		mockRepo.On("ResetForRetry", mock.Anything, "job-1").
			Return(fmt.Errorf("reset job job-1: %w", job.ErrInvalidState))

		s := newTestService(mockRepo, mockBroker)
		_, err := s.RetryJob(context.Background(), "job-1")

		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, apiStatus(t, err))
	})
}

func TestJobService_QueueStatus(t *testing.T) {
	mockRepo := new(mocks.JobRepoMock)
	mockBroker := new(mocks.BrokerMock)

	mockRepo.On("AggregateCounts", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(&job.QueueCounts{Waiting: 4, Active: 2, Completed: 10, Failed: 1, Delayed: 3}, nil)

	s := newTestService(mockRepo, mockBroker)
	resp, err := s.QueueStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.Waiting)
	assert.Equal(t, int64(2), resp.Active)
	assert.Equal(t, int64(10), resp.Completed)
	assert.Equal(t, int64(1), resp.Failed)
	assert.Equal(t, int64(3), resp.Delayed)
}

func TestJobService_Healthy(t *testing.T) {
	t.Run("healthy when both stores answer", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)
		mockRepo.On("Ping", mock.Anything).Return(nil)
		mockBroker.On("Ping", mock.Anything).Return(nil)

		s := newTestService(mockRepo, mockBroker)
		assert.NoError(t, s.Healthy(context.Background()))
	})

	t.Run("database failure reports unhealthy", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)
		mockRepo.On("Ping", mock.Anything).Return(errors.New("dial refused"))

		s := newTestService(mockRepo, mockBroker)
		err := s.Healthy(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database unreachable")
	})

	t.Run("broker failure reports unhealthy", func(t *testing.T) {
		mockRepo := new(mocks.JobRepoMock)
		mockBroker := new(mocks.BrokerMock)
		mockRepo.On("Ping", mock.Anything).Return(nil)
		mockBroker.On("Ping", mock.Anything).Return(errors.New("dial refused"))

		s := newTestService(mockRepo, mockBroker)
		err := s.Healthy(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker unreachable")
	})
}
