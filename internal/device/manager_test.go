package device_test

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	. "ledstrip-remote/internal/device"
	"ledstrip-remote/internal/mocks"
)

const endpoint = `ws://strip.local:80`

// recorder collects handler calls from the manager's goroutines.
type recorder struct {
	mu       sync.Mutex
	errors   []string
	messages []string
	opens    int
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnError: func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, msg)
		},
		OnOpen: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.opens++
		},
		OnMessage: func(payload string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, payload)
		},
	}
}

func (r *recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func (r *recorder) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// manualTicker hands out tick channels the test fires by hand.
type manualTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	started int
}

func (t *manualTicker) newTicker(time.Duration) (<-chan time.Time, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started++
	t.ch = make(chan time.Time)
	return t.ch, func() {}
}

func (t *manualTicker) Started() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *manualTicker) tick() {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	Expect(ch).NotTo(BeNil())
	Eventually(ch).Should(BeSent(time.Now()))
}

var _ = Describe("Manager", func() {
	var (
		dialer  *mocks.Dialer
		conn    *mocks.FakeConn
		rec     *recorder
		ticker  *manualTicker
		retry   *RetrySchedule
		manager *Manager
	)

	newManager := func() *Manager {
		log, _ := test.NewNullLogger()
		return NewManager(endpoint, dialer, rec.handlers(), WithRetrySchedule(retry), WithLogger(log))
	}

	BeforeEach(func() {
		dialer = new(mocks.Dialer)
		conn = mocks.NewFakeConn()
		rec = &recorder{}
		ticker = &manualTicker{}
		retry = NewRetrySchedule(ticker.newTicker)
		manager = newManager()
	})

	AfterEach(func() {
		manager.Shutdown()
	})

	It("should start disconnected without dialing", func() {
		Expect(manager.State()).To(Equal(Disconnected))
		Expect(manager.Endpoint()).To(Equal(endpoint))
		dialer.AssertNotCalled(GinkgoT(), `Dial`, mock.Anything, mock.Anything)
	})

	It("should report a send without a connection exactly once and return ErrNotOpen", func() {
		err := manager.Send(`1,2,3`)
		Expect(err).To(MatchError(ErrNotOpen))
		Expect(rec.Errors()).To(Equal([]string{MsgNotOpen}))
		Expect(retry.Armed()).To(BeFalse())
	})

	Context("when the device accepts the connection", func() {
		BeforeEach(func() {
			dialer.On(`Dial`, mock.Anything, endpoint).Return(conn, nil).Once()
			manager.Connect()
			Eventually(manager.State).Should(Equal(Open))
		})

		It("should call OnOpen once", func() {
			Eventually(rec.Opens).Should(Equal(1))
		})

		It("should deliver inbound frames in transport order", func() {
			conn.Deliver(`a`)
			conn.Deliver(`b`)
			conn.Deliver(`c`)
			Eventually(rec.Messages).Should(Equal([]string{`a`, `b`, `c`}))
		})

		It("should write text frames", func() {
			Expect(manager.Send(`5,11,123`)).To(Succeed())
			Expect(conn.Written()).To(Equal([]string{`5,11,123`}))
			Expect(rec.Errors()).To(BeEmpty())
		})

		It("should report a normal close and arm the retry schedule", func() {
			conn.Fail(&websocket.CloseError{Code: websocket.CloseNormalClosure})
			Eventually(manager.State).Should(Equal(Disconnected))
			Eventually(rec.Errors).Should(Equal([]string{MsgSocketClosed}))
			Expect(retry.Armed()).To(BeTrue())
			Expect(conn.IsClosed()).To(BeTrue())
		})

		It("should report an abnormal read error before the close", func() {
			conn.Fail(errors.New("connection reset by peer"))
			Eventually(rec.Errors).Should(Equal([]string{"connection reset by peer", MsgSocketClosed}))
			Expect(retry.Armed()).To(BeTrue())
		})

		It("should treat a failed write as a disconnect", func() {
			conn.FailWrites(errors.New("broken pipe"))
			Expect(manager.Send(`1`)).To(MatchError(ContainSubstring("broken pipe")))
			Expect(manager.State()).To(Equal(Disconnected))
			Expect(rec.Errors()).To(Equal([]string{"broken pipe", MsgSocketClosed}))
			Expect(retry.Armed()).To(BeTrue())
		})

		It("should close cleanly on shutdown and never retry", func() {
			manager.Shutdown()
			Expect(manager.State()).To(Equal(Disconnected))
			Expect(conn.IsClosed()).To(BeTrue())
			Expect(conn.Controls()).To(Equal([]int{websocket.CloseMessage}))
			Consistently(rec.Errors, 50*time.Millisecond).Should(BeEmpty())
			Expect(retry.Armed()).To(BeFalse())

			manager.Connect()
			Expect(manager.State()).To(Equal(Disconnected))
		})

		It("should drop the previous connection on Connect", func() {
			next := mocks.NewFakeConn()
			dialer.On(`Dial`, mock.Anything, endpoint).Return(next, nil).Once()
			manager.Connect()
			Eventually(rec.Opens).Should(Equal(2))
			Expect(conn.IsClosed()).To(BeTrue())

			// Events from the old connection are ignored.
			Consistently(rec.Errors, 50*time.Millisecond).Should(BeEmpty())
			next.Deliver(`fresh`)
			Eventually(rec.Messages).Should(Equal([]string{`fresh`}))
		})
	})

	Context("when dialing fails", func() {
		BeforeEach(func() {
			dialer.On(`Dial`, mock.Anything, endpoint).Return(nil, errors.New("connection refused")).Once()
			manager.Connect()
			Eventually(retry.Armed).Should(BeTrue())
		})

		It("should report the failure and the close", func() {
			Expect(rec.Errors()).To(Equal([]string{"connection refused", MsgSocketClosed}))
			Expect(manager.State()).To(Equal(Disconnected))
		})

		It("should reconnect on the next tick and disarm once open", func() {
			dialer.On(`Dial`, mock.Anything, endpoint).Return(conn, nil).Once()
			ticker.tick()
			Eventually(manager.State).Should(Equal(Open))
			Eventually(retry.Armed).Should(BeFalse())
			dialer.AssertNumberOfCalls(GinkgoT(), `Dial`, 2)
		})
	})

	It("should keep one retry timer for every manager sharing the schedule", func() {
		other := newManager()
		defer other.Shutdown()

		dialer.On(`Dial`, mock.Anything, endpoint).Return(nil, errors.New("connection refused")).Twice()
		manager.Connect()
		other.Connect()

		Eventually(func() int { return len(rec.Errors()) }).Should(Equal(4))
		Expect(retry.Armed()).To(BeTrue())
		Expect(ticker.Started()).To(Equal(1))

		dialer.On(`Dial`, mock.Anything, endpoint).Return(conn, nil).Once()
		dialer.On(`Dial`, mock.Anything, endpoint).Return(mocks.NewFakeConn(), nil).Once()
		ticker.tick()
		Eventually(manager.State).Should(Equal(Open))
		Eventually(other.State).Should(Equal(Open))
		Eventually(retry.Armed).Should(BeFalse())
	})

	It("should keep retrying a waiting manager when another one shuts down", func() {
		fresh := newManager()
		defer fresh.Shutdown()

		dialer.On(`Dial`, mock.Anything, endpoint).Return(nil, errors.New("connection refused")).Once()
		fresh.Connect()
		Eventually(retry.Armed).Should(BeTrue())

		manager.Shutdown()
		Expect(retry.Armed()).To(BeTrue())

		dialer.On(`Dial`, mock.Anything, endpoint).Return(conn, nil).Once()
		ticker.tick()
		Eventually(fresh.State).Should(Equal(Open))
		Eventually(retry.Armed).Should(BeFalse())
	})

	It("should keep retrying a waiting manager when another one opens", func() {
		waiting := newManager()
		defer waiting.Shutdown()

		dialer.On(`Dial`, mock.Anything, endpoint).Return(nil, errors.New("connection refused")).Once()
		waiting.Connect()
		Eventually(retry.Armed).Should(BeTrue())

		dialer.On(`Dial`, mock.Anything, endpoint).Return(conn, nil).Once()
		manager.Connect()
		Eventually(manager.State).Should(Equal(Open))
		Expect(retry.Armed()).To(BeTrue())
		Expect(waiting.State()).To(Equal(Disconnected))
	})
})

var _ = Describe("RetrySchedule", func() {
	It("should run one ticker for every owner and stop when the last one leaves", func() {
		ticker := &manualTicker{}
		retry := NewRetrySchedule(ticker.newTicker)
		first := make(chan struct{}, 4)
		second := make(chan struct{}, 4)

		Expect(retry.Arm("first", time.Second, func() { first <- struct{}{} })).To(BeTrue())
		Expect(retry.Arm("second", time.Second, func() { second <- struct{}{} })).To(BeFalse())
		ticker.tick()
		Eventually(first).Should(Receive())
		Eventually(second).Should(Receive())

		Expect(retry.Disarm("first")).To(BeTrue())
		Expect(retry.Disarm("first")).To(BeFalse())
		Expect(retry.Armed()).To(BeTrue())
		ticker.tick()
		Eventually(second).Should(Receive())
		Consistently(first, 50*time.Millisecond).ShouldNot(Receive())

		Expect(retry.Disarm("second")).To(BeTrue())
		Expect(retry.Armed()).To(BeFalse())
		Expect(ticker.Started()).To(Equal(1))
	})

	It("should ignore a disarm from an owner that never armed", func() {
		retry := NewRetrySchedule((&manualTicker{}).newTicker)
		Expect(retry.Arm("owner", time.Second, func() {})).To(BeTrue())
		Expect(retry.Disarm("stranger")).To(BeFalse())
		Expect(retry.Armed()).To(BeTrue())
		Expect(retry.Disarm("owner")).To(BeTrue())
	})
})
