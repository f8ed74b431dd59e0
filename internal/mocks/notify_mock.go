package mocks

import (
	"context"

	"github.com/SNU-SE/analysisq/internal/notify"
	"github.com/stretchr/testify/mock"
)

type NotifierMock struct {
	mock.Mock
}

var _ notify.Notifier = (*NotifierMock)(nil)

func (m *NotifierMock) Notify(ctx context.Context, event notify.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type AlerterMock struct {
	mock.Mock
}

var _ notify.Alerter = (*AlerterMock)(nil)

func (m *AlerterMock) Alert(ctx context.Context, jobID string, err error) {
	m.Called(ctx, jobID, err)
}
