package transporter

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stretchr/testify/mock"
)

type MockTransporter struct {
	mock.Mock
}

func (m *MockTransporter) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(chan struct{})
}

func (m *MockTransporter) Err() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransporter) Inbound() <-chan *[]byte {
	args := m.Called()
	return args.Get(0).(chan *[]byte)
}

func (m *MockTransporter) Dial(connUrl *url.URL, headers http.Header, ctx context.Context) (err error) {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransporter) Close(reason error) {
	m.Called()
}
