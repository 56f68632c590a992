package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ledstrip-remote/internal/device"
)

type Dialer struct {
	mock.Mock
}

// Dial provides a mock function with given fields: ctx, endpoint
func (_m *Dialer) Dial(ctx context.Context, endpoint string) (device.Conn, error) {
	ret := _m.Called(ctx, endpoint)

	var r0 device.Conn
	if rf, ok := ret.Get(0).(func(context.Context, string) device.Conn); ok {
		r0 = rf(ctx, endpoint)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(device.Conn)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, endpoint)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
