package probe

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockProber struct {
	mock.Mock
}

func (m *MockProber) Check(ctx context.Context) Result {
	args := m.Called()
	return args.Get(0).(Result)
}
