package mocks

import "github.com/stretchr/testify/mock"

type Transport struct {
	mock.Mock
}

// Send provides a mock function with given fields: payload
func (_m *Transport) Send(payload string) error {
	ret := _m.Called(payload)

	var r0 error
	if rf, ok := ret.Get(0).(func(string) error); ok {
		r0 = rf(payload)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
