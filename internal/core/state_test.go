package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "ledstrip-remote/internal/core"
)

var _ = Describe("State", func() {
	var state *State

	BeforeEach(func() {
		state = NewState()
	})

	It("should start disconnected", func() {
		Expect(state.Clone().Connection).To(Equal("disconnected"))
	})

	It("should report connection changes only", func() {
		Expect(state.SetConnection("disconnected")).To(BeFalse())
		Expect(state.SetConnection("open")).To(BeTrue())
		Expect(state.Clone().Connection).To(Equal("open"))
	})

	It("should clear an error only with the latest token", func() {
		first := state.SetErrorNotification("socket closed")
		second := state.SetErrorNotification("socket closed")

		Expect(state.ClearErrorNotification(first)).To(BeFalse())
		Expect(state.Clone().ErrorNotification).To(Equal("socket closed"))

		Expect(state.ClearErrorNotification(second)).To(BeTrue())
		Expect(state.Clone().ErrorNotification).To(BeEmpty())
	})
})

var _ = Describe("EventBus", func() {
	var bus *EventBus

	BeforeEach(func() {
		bus = NewEventBus()
	})

	It("should deliver events to subscribers of that type only", func() {
		settings := bus.Subscribe(SettingsChangedEvent)
		loop := bus.Subscribe(LoopChangedEvent)

		bus.Publish(Event{Type: SettingsChangedEvent, Payload: 1})
		Expect(settings).To(Receive(Equal(Event{Type: SettingsChangedEvent, Payload: 1})))
		Expect(loop).NotTo(Receive())
	})

	It("should stop delivering after unsubscribe", func() {
		sub := bus.Subscribe(SwatchesChangedEvent)
		bus.Unsubscribe(sub, SwatchesChangedEvent)
		bus.Publish(Event{Type: SwatchesChangedEvent})
		Expect(sub).NotTo(Receive())
	})

	It("should drop instead of blocking on a full subscriber", func() {
		sub := bus.Subscribe(SwatchesChangedEvent)
		for i := 0; i < cap(sub)+5; i++ {
			bus.Publish(Event{Type: SwatchesChangedEvent, Payload: i})
		}
		Expect(sub).To(HaveLen(cap(sub)))
		Expect(bus.Dropped()).To(Equal(uint64(5)))
	})
})
