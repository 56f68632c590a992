package mocks

import (
	"github.com/stretchr/testify/mock"

	"ledstrip-remote/internal/protocol"
)

type SettingsSender struct {
	mock.Mock
}

// SendSettings provides a mock function with given fields: rec, debounced
func (_m *SettingsSender) SendSettings(rec protocol.Settings, debounced bool) (bool, error) {
	ret := _m.Called(rec, debounced)

	var r0 bool
	if rf, ok := ret.Get(0).(func(protocol.Settings, bool) bool); ok {
		r0 = rf(rec, debounced)
	} else {
		r0 = ret.Bool(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(protocol.Settings, bool) error); ok {
		r1 = rf(rec, debounced)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
