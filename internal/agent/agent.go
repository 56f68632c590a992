// Package agent wires the device connection, settings model and every control surface
// together and runs the single orchestration loop.
package agent

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ledstrip-remote/internal/config"
	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/device"
	"ledstrip-remote/internal/lua"
	"ledstrip-remote/internal/mqtt"
	"ledstrip-remote/internal/protocol"
	"ledstrip-remote/internal/scheduler"
	"ledstrip-remote/internal/server"
	"ledstrip-remote/internal/settings"
)

// deviceEvent carries an open or inbound frame from the manager onto the loop.
type deviceEvent struct {
	open    bool
	payload string
}

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	log    logrus.FieldLogger
	wg     sync.WaitGroup

	state          *core.State
	eventBus       *core.EventBus
	commandChannel core.CommandChannel
	deviceEvents   chan deviceEvent

	codec   *protocol.Codec
	model   *settings.Model
	manager *device.Manager

	luaEngine  *lua.Engine
	scheduler  *scheduler.Scheduler
	server     *server.Server
	mqttClient *mqtt.Client

	dialer            device.Dialer
	retry             *device.RetrySchedule
	now               func() time.Time
	rng               *rand.Rand
	afterFunc         func(time.Duration, func()) *time.Timer
	notificationClear time.Duration
	loopInterval      time.Duration
}

// Option customises an Agent, mostly for tests.
type Option func(*Agent)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d device.Dialer) Option {
	return func(a *Agent) { a.dialer = d }
}

// WithRetrySchedule replaces device.DefaultRetry.
func WithRetrySchedule(r *device.RetrySchedule) Option {
	return func(a *Agent) { a.retry = r }
}

// WithClock sets the clock used by the debouncer.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithRand sets the random source used by loop mode.
func WithRand(r *rand.Rand) Option {
	return func(a *Agent) { a.rng = r }
}

func NewAgent(cfg *config.Config, log logrus.FieldLogger, opts ...Option) (*Agent, error) {
	schema, err := cfg.Device.WireSchema()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		ctx:               ctx,
		cancel:            cancel,
		config:            cfg,
		log:               log,
		state:             core.NewState(),
		eventBus:          core.NewEventBus(),
		commandChannel:    make(core.CommandChannel, 20),
		deviceEvents:      make(chan deviceEvent, 16),
		dialer:            device.WebsocketDialer{HandshakeTimeout: config.Duration(cfg.Device.HandshakeTimeout)},
		retry:             device.DefaultRetry,
		now:               time.Now,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		afterFunc:         time.AfterFunc,
		notificationClear: config.Duration(cfg.UI.NotificationClear),
		loopInterval:      config.Duration(cfg.LoopInterval),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.manager = device.NewManager(cfg.Device.Endpoint, a.dialer, device.Handlers{
		OnError:   a.notifyError,
		OnOpen:    func() { a.pushDeviceEvent(deviceEvent{open: true}) },
		OnMessage: func(payload string) { a.pushDeviceEvent(deviceEvent{payload: payload}) },
	},
		device.WithRetrySchedule(a.retry),
		device.WithReconnectInterval(config.Duration(cfg.Device.ReconnectInterval)),
		device.WithPingInterval(config.Duration(cfg.Device.PingInterval)),
		device.WithLogger(log.WithField("component", "device")),
	)

	a.codec = protocol.NewCodec(schema)
	debouncer := protocol.NewDebouncer(config.Duration(cfg.Device.DebounceInterval), a.now)
	sender := protocol.NewSender(a.codec, debouncer, a.manager, log.WithField("component", "codec"))
	a.model = settings.NewModel(protocol.DefaultSettings(), sender, log.WithField("component", "settings"))

	a.luaEngine = lua.NewEngine(a.commandChannel, cfg.PatternsDir, a.eventBus, log.WithField("component", "lua"))
	a.scheduler = scheduler.NewScheduler(a.commandChannel, cfg.SchedulesFile, log.WithField("component", "scheduler"))

	if !cfg.Server.Disabled {
		a.server = server.NewServer(
			cfg.Server,
			a.Snapshot,
			a.eventBus,
			a.commandChannel,
			a.luaEngine,
			a.scheduler,
			schema,
			log.WithField("component", "server"),
		)
	}

	a.mqttClient = mqtt.NewClient(cfg.MQTT, a.commandChannel, a.eventBus, log.WithField("component", "mqtt"))

	return a, nil
}

// Run starts every component and blocks in the orchestration loop until Shutdown.
func (a *Agent) Run() {
	a.wg.Add(2)
	defer a.wg.Done()
	go func() {
		defer a.wg.Done()
		a.listenEvents()
	}()

	if a.mqttClient != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.mqttClient.Run(a.ctx)
		}()
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				a.log.Errorf("MQTT Setup Error: %v", err)
			}
		}()
	}

	a.scheduler.Start()

	if a.server != nil {
		a.log.Infof("Agent running on http://localhost:%s", a.config.Server.Port)
		go func() {
			if err := a.server.ListenAndServe(a.ctx); err != nil {
				a.log.Errorf("Server error: %v", err)
			}
		}()
	}

	a.manager.Connect()
	a.refreshConnection()

	a.log.Info("Agent orchestrator ready.")
	for {
		select {
		case <-a.ctx.Done():
			a.log.Info("Agent orchestrator shutting down...")
			return
		case ev := <-a.deviceEvents:
			a.handleDeviceEvent(ev)
		case cmd := <-a.commandChannel:
			a.handleCommand(cmd)
		}
	}
}

// Commands is where control surfaces push their requests.
func (a *Agent) Commands() core.CommandChannel {
	return a.commandChannel
}

// EventBus exposes the bus for observers such as the CLI.
func (a *Agent) EventBus() *core.EventBus {
	return a.eventBus
}

// Snapshot is what the UI renders right now.
func (a *Agent) Snapshot() core.Snapshot {
	st := a.state.Clone()
	return core.Snapshot{
		Settings:          a.model.Current(),
		Swatches:          a.model.Swatches(),
		Connection:        st.Connection,
		Notification:      st.Notification,
		ErrorNotification: st.ErrorNotification,
		Loop:              st.Loop,
		RunningPattern:    st.RunningPattern,
	}
}

func (a *Agent) pushDeviceEvent(ev deviceEvent) {
	select {
	case a.deviceEvents <- ev:
	case <-a.ctx.Done():
	}
}

func (a *Agent) handleDeviceEvent(ev deviceEvent) {
	if ev.open {
		a.refreshConnection()
		a.state.SetNotification("connected to " + a.manager.Endpoint())
		a.publishNotification()
		if a.config.Device.ResendOnConnect {
			if err := a.model.SendCurrent(); err != nil {
				a.log.Debugf("Resend on connect failed: %v", err)
			}
		}
		return
	}

	a.log.Debugf("received: %s", ev.payload)
	msg := a.codec.Decode(ev.payload)
	switch msg.Kind {
	case protocol.KindSwatches:
		a.model.ApplyInboundSwatches(msg.Swatches)
		a.eventBus.Publish(core.Event{Type: core.SwatchesChangedEvent, Payload: a.model.Swatches()})
	case protocol.KindEcho:
		rec := a.model.ApplyInboundEcho(msg.Echo)
		a.eventBus.Publish(core.Event{Type: core.SettingsChangedEvent, Payload: rec})
	}
}

// notifyError shows msg as the transient error notification. It runs on whatever
// goroutine the manager reports from, including the loop itself during a send, so it
// must never wait on the loop.
func (a *Agent) notifyError(msg string) {
	a.log.Infof("Error notification: %s", msg)
	seq := a.state.SetErrorNotification(msg)
	a.publishNotification()
	a.refreshConnection()

	a.afterFunc(a.notificationClear, func() {
		if a.state.ClearErrorNotification(seq) {
			a.publishNotification()
		}
	})
}

func (a *Agent) publishNotification() {
	st := a.state.Clone()
	a.eventBus.Publish(core.Event{
		Type: core.NotificationChangedEvent,
		Payload: map[string]interface{}{
			"notification":      st.Notification,
			"errorNotification": st.ErrorNotification,
		},
	})
}

// refreshConnection publishes the manager's state if it differs from the last one shown.
func (a *Agent) refreshConnection() {
	now := a.manager.State().String()
	if !a.state.SetConnection(now) {
		return
	}
	a.eventBus.Publish(core.Event{Type: core.ConnectionChangedEvent, Payload: now})
}

func (a *Agent) listenEvents() {
	sub := a.eventBus.Subscribe(core.PatternChangedEvent)
	defer a.eventBus.Unsubscribe(sub, core.PatternChangedEvent)

	for {
		select {
		case <-a.ctx.Done():
			return
		case event := <-sub:
			if payload, ok := event.Payload.(map[string]interface{}); ok {
				if pattern, ok := payload["running"].(string); ok {
					a.state.SetRunningPattern(pattern)
				}
			}
		}
	}
}

// Shutdown stops every component and waits for the background goroutines. Producers
// go first so nothing blocks on a command channel the loop no longer drains.
func (a *Agent) Shutdown() {
	a.scheduler.Stop()
	if a.server != nil {
		_ = a.server.Shutdown(context.Background())
	}
	a.mqttClient.Disconnect()
	a.cancel()
	a.manager.Shutdown()
	a.wg.Wait()
	a.luaEngine.Close()
}
