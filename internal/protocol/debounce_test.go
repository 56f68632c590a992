package protocol_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"ledstrip-remote/internal/mocks"
	. "ledstrip-remote/internal/protocol"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var _ = Describe("Debouncer", func() {
	var (
		clock     *fakeClock
		debouncer *Debouncer
	)

	BeforeEach(func() {
		clock = &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
		debouncer = NewDebouncer(DefaultDebounceInterval, clock.now)
	})

	It("should let the first debounced send through", func() {
		Expect(debouncer.Allow(true)).To(BeTrue())
		Expect(debouncer.LastSent()).To(Equal(clock.t))
	})

	It("should drop debounced sends inside the window", func() {
		Expect(debouncer.Allow(true)).To(BeTrue())
		clock.advance(100 * time.Millisecond)
		Expect(debouncer.Allow(true)).To(BeFalse())
		clock.advance(100 * time.Millisecond)
		Expect(debouncer.Allow(true)).To(BeFalse())
	})

	It("should allow a debounced send once the window has passed", func() {
		Expect(debouncer.Allow(true)).To(BeTrue())
		clock.advance(DefaultDebounceInterval)
		Expect(debouncer.Allow(true)).To(BeTrue())
	})

	It("should always allow committed sends and restart the window", func() {
		Expect(debouncer.Allow(true)).To(BeTrue())
		clock.advance(10 * time.Millisecond)
		Expect(debouncer.Allow(false)).To(BeTrue())
		Expect(debouncer.LastSent()).To(Equal(clock.t))
		clock.advance(DefaultDebounceInterval - time.Millisecond)
		Expect(debouncer.Allow(true)).To(BeFalse())
	})

	It("should not move the window for a dropped send", func() {
		start := clock.t
		Expect(debouncer.Allow(true)).To(BeTrue())
		clock.advance(50 * time.Millisecond)
		Expect(debouncer.Allow(true)).To(BeFalse())
		Expect(debouncer.LastSent()).To(Equal(start))
	})
})

var _ = Describe("Sender", func() {
	var (
		clock     *fakeClock
		transport *mocks.Transport
		sender    *Sender
		log       *logrus.Logger
	)

	BeforeEach(func() {
		clock = &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
		transport = new(mocks.Transport)
		log, _ = test.NewNullLogger()
		sender = NewSender(NewCodec(SchemaV10), NewDebouncer(DefaultDebounceInterval, clock.now), transport, log)
	})

	It("should encode and hand the record to the transport", func() {
		transport.On(`Send`, `5,11,123,50,0,0,128,5,0,1`).Return(nil).Once()
		sent, err := sender.SendSettings(DefaultSettings(), false)
		Expect(sent).To(BeTrue())
		Expect(err).NotTo(HaveOccurred())
		transport.AssertExpectations(GinkgoT())
	})

	It("should not reach the transport for a dropped debounced send", func() {
		transport.On(`Send`, mock.Anything).Return(nil).Once()
		_, _ = sender.SendSettings(DefaultSettings(), true)
		clock.advance(10 * time.Millisecond)
		sent, err := sender.SendSettings(DefaultSettings(), true)
		Expect(sent).To(BeFalse())
		Expect(err).NotTo(HaveOccurred())
		transport.AssertNumberOfCalls(GinkgoT(), `Send`, 1)
	})

	It("should return the transport error", func() {
		boom := errors.New("boom")
		transport.On(`Send`, mock.Anything).Return(boom)
		sent, err := sender.SendSettings(DefaultSettings(), false)
		Expect(sent).To(BeTrue())
		Expect(err).To(MatchError(boom))
	})
})
