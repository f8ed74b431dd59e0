package mocks

import (
	"context"
	"time"

	"github.com/SNU-SE/analysisq/internal/broker"
	"github.com/stretchr/testify/mock"
)

type BrokerMock struct {
	mock.Mock
}

var _ broker.Broker = (*BrokerMock)(nil)

func (m *BrokerMock) Publish(ctx context.Context, jobID string, priority int) error {
	args := m.Called(ctx, jobID, priority)
	return args.Error(0)
}

func (m *BrokerMock) Delay(ctx context.Context, jobID string, priority int, notBefore time.Time) error {
	args := m.Called(ctx, jobID, priority, notBefore)
	return args.Error(0)
}

func (m *BrokerMock) Reserve(ctx context.Context) (string, bool, error) {
	args := m.Called(ctx)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *BrokerMock) Discard(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *BrokerMock) MoveDue(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *BrokerMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *BrokerMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
