package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/agentdeck/auth"
)

// MockAuth is a testify mock of backend.Authenticator for asserting which
// credential lookups a component performs.
type MockAuth struct {
	mock.Mock
}

// Status implements backend.Authenticator.
func (m *MockAuth) Status(ctx context.Context) (auth.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(auth.Status), args.Error(1)
}

// APIKey implements backend.Authenticator.
func (m *MockAuth) APIKey(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
