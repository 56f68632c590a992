package agent

import (
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"ledstrip-remote/internal/config"
	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/device"
	"ledstrip-remote/internal/mocks"
	"ledstrip-remote/internal/protocol"
)

// timers collects notification clear callbacks so tests decide when they fire.
type timers struct {
	mu      sync.Mutex
	pending []func()
}

func (t *timers) afterFunc(d time.Duration, f func()) *time.Timer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, f)
	return nil
}

func (t *timers) fire(i int) {
	t.mu.Lock()
	f := t.pending[i]
	t.mu.Unlock()
	f()
}

func (t *timers) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

var _ = Describe("Agent", func() {
	var (
		a      *Agent
		cfg    *config.Config
		dialer *mocks.Dialer
		conn   *mocks.FakeConn
		clock  time.Time
		clears *timers
		events core.Subscriber
	)

	build := func() {
		log, _ := test.NewNullLogger()
		var err error
		a, err = NewAgent(cfg, log,
			WithDialer(dialer),
			WithRetrySchedule(device.NewRetrySchedule(func(time.Duration) (<-chan time.Time, func()) {
				return make(chan time.Time), func() {}
			})),
			WithClock(func() time.Time { return clock }),
			WithRand(rand.New(rand.NewSource(7))),
		)
		Expect(err).NotTo(HaveOccurred())
		a.afterFunc = clears.afterFunc
		events = a.EventBus().Subscribe(core.SettingsChangedEvent, core.LoopChangedEvent, core.SchedulesChangedEvent, core.SwatchesChangedEvent)
	}

	// connect opens the fake device and feeds the open event through the loop handler.
	connect := func() {
		dialer.On(`Dial`, mock.Anything, mock.Anything).Return(conn, nil).Once()
		a.manager.Connect()
		var ev deviceEvent
		Eventually(a.deviceEvents).Should(Receive(&ev))
		a.handleDeviceEvent(ev)
	}

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		cfg = config.Default()
		cfg.Server.Disabled = true
		cfg.PatternsDir = filepath.Join(dir, "patterns")
		cfg.SchedulesFile = filepath.Join(dir, "schedules.json")
		dialer = new(mocks.Dialer)
		conn = mocks.NewFakeConn()
		clock = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		clears = &timers{}
		build()
	})

	AfterEach(func() {
		a.Shutdown()
	})

	Context("without a connection", func() {
		It("should still keep the merged record and surface the failure", func() {
			a.handleCommand(core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{
				"patch": protocol.Patch{protocol.FieldBPM: 100},
			}})

			snap := a.Snapshot()
			Expect(snap.Settings.BPM).To(Equal(100))
			Expect(snap.ErrorNotification).To(Equal(device.MsgNotOpen))
			Expect(snap.Connection).To(Equal("disconnected"))
			Expect(events).To(Receive(HaveField("Type", core.SettingsChangedEvent)))
		})

		It("should clear the error notification only from the latest timer", func() {
			a.handleCommand(core.Command{Type: core.CmdSendNow})
			a.handleCommand(core.Command{Type: core.CmdSendNow})
			Expect(clears.count()).To(Equal(2))

			clears.fire(0)
			Expect(a.Snapshot().ErrorNotification).To(Equal(device.MsgNotOpen))
			clears.fire(1)
			Expect(a.Snapshot().ErrorNotification).To(BeEmpty())
		})
	})

	Context("with an open connection", func() {
		BeforeEach(func() {
			connect()
		})

		It("should show the connection", func() {
			snap := a.Snapshot()
			Expect(snap.Connection).To(Equal("open"))
			Expect(snap.Notification).To(ContainSubstring(cfg.Device.Endpoint))
			Expect(conn.Written()).To(BeEmpty())
		})

		It("should select a mode and reset its option", func() {
			a.handleCommand(core.Command{Type: core.CmdSetMode, Payload: map[string]interface{}{"ledMode": "Cylon"}})
			Expect(conn.Written()).To(Equal([]string{`2,0,123,50,0,0,128,5,0,1`}))
		})

		It("should apply presets committed", func() {
			a.handleCommand(core.Command{Type: core.CmdApplyPreset, Payload: map[string]interface{}{"name": "Drop Wave"}})
			Expect(conn.Written()).To(Equal([]string{`5,5,123,50,4,0,128,5,0,1`}))
		})

		It("should convert hue degrees into device units", func() {
			a.handleCommand(core.Command{Type: core.CmdSetHue, Payload: map[string]interface{}{"field": "h", "degrees": 180.0}})
			Expect(a.Snapshot().Settings.Hue).To(Equal(138))
		})

		It("should drop debounced sends inside the window but keep the record", func() {
			drag := func(v int) {
				a.handleCommand(core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{
					"patch": protocol.Patch{protocol.FieldBrightness: v}, "debounced": true,
				}})
			}
			drag(10)
			clock = clock.Add(100 * time.Millisecond)
			drag(20)
			Expect(conn.Written()).To(HaveLen(1))
			Expect(a.Snapshot().Settings.Brightness).To(Equal(20))

			a.handleCommand(core.Command{Type: core.CmdSendNow})
			Expect(conn.Written()).To(HaveLen(2))
			Expect(conn.Written()[1]).To(Equal(`5,11,123,20,0,0,128,5,0,1`))
		})

		It("should adopt inbound echoes and swatches", func() {
			conn.Deliver(`0,1,100,200,3,10,20,4,2,0`)
			var ev deviceEvent
			Eventually(a.deviceEvents).Should(Receive(&ev))
			a.handleDeviceEvent(ev)
			Expect(a.Snapshot().Settings.Brightness).To(Equal(200))

			conn.Deliver(`#FF0000#00FF00#00`)
			Eventually(a.deviceEvents).Should(Receive(&ev))
			a.handleDeviceEvent(ev)
			Expect(a.Snapshot().Swatches).To(Equal([]string{`#FF0000`, `#00FF00`}))
			Expect(conn.Written()).To(BeEmpty())
		})

		It("should start loop mode and step on a repeated request", func() {
			a.handleCommand(core.Command{Type: core.CmdSetLoop, Payload: map[string]interface{}{"on": true}})
			Expect(a.Snapshot().Loop).To(BeTrue())
			Expect(conn.Written()).To(BeEmpty())

			a.handleCommand(core.Command{Type: core.CmdSetLoop, Payload: map[string]interface{}{"on": true}})
			Expect(conn.Written()).To(HaveLen(1))

			a.handleCommand(core.Command{Type: core.CmdLoopStep})
			Expect(conn.Written()).To(HaveLen(2))

			a.handleCommand(core.Command{Type: core.CmdSetLoop, Payload: map[string]interface{}{"on": false}})
			a.handleCommand(core.Command{Type: core.CmdLoopStep})
			Expect(conn.Written()).To(HaveLen(2))
			Expect(a.Snapshot().Loop).To(BeFalse())
		})

		It("should manage schedules", func() {
			a.handleCommand(core.Command{Type: core.CmdAddSchedule, Payload: map[string]interface{}{
				"spec": "0 7 * * *", "command": "preset Duo Wave",
			}})
			Expect(a.scheduler.GetAll()).To(HaveLen(1))
			for id := range a.scheduler.GetAll() {
				a.handleCommand(core.Command{Type: core.CmdRemoveSchedule, Payload: map[string]interface{}{"id": float64(id)}})
			}
			Expect(a.scheduler.GetAll()).To(BeEmpty())
		})

		It("should ignore unknown presets and modes", func() {
			a.handleCommand(core.Command{Type: core.CmdApplyPreset, Payload: map[string]interface{}{"name": "Nope"}})
			a.handleCommand(core.Command{Type: core.CmdSetMode, Payload: map[string]interface{}{"ledMode": "Disco"}})
			Expect(conn.Written()).To(BeEmpty())
		})
	})

	It("should resend the current record on connect when configured", func() {
		a.Shutdown()
		cfg.Device.ResendOnConnect = true
		build()
		connect()
		Expect(conn.Written()).To(Equal([]string{`5,11,123,50,0,0,128,5,0,1`}))
	})
})
