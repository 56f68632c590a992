package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ledstrip-remote/internal/config"
	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/presets"
	"ledstrip-remote/internal/protocol"
	"ledstrip-remote/internal/scheduler"
)

const readLimit = 64 * 1024

// PatternLister lists the available Lua patterns.
type PatternLister interface {
	GetPatternList() ([]string, error)
}

// ScheduleLister lists the cron schedules.
type ScheduleLister interface {
	GetAll() map[cron.EntryID]scheduler.ScheduleEntry
}

// Server serves the web UI and its WebSocket.
type Server struct {
	Hub        *Hub
	httpServer *http.Server

	snapshot  func() core.Snapshot
	eventBus  *core.EventBus
	commands  core.CommandChannel
	patterns  PatternLister
	schedules ScheduleLister
	schema    protocol.Schema

	allowedOrigins []string
	upgrader       websocket.Upgrader
	log            logrus.FieldLogger
}

// NewServer creates a new server instance.
func NewServer(cfg config.ServerConfig, snapshot func() core.Snapshot, eventBus *core.EventBus, commands core.CommandChannel, patterns PatternLister, schedules ScheduleLister, schema protocol.Schema, log logrus.FieldLogger) *Server {
	s := &Server{
		Hub:            NewHub(cfg.SwatchRate, cfg.SwatchBurst, log),
		snapshot:       snapshot,
		eventBus:       eventBus,
		commands:       commands,
		patterns:       patterns,
		schedules:      schedules,
		schema:         schema,
		allowedOrigins: cfg.AllowedOrigins,
		log:            log,
	}

	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(cfg.WebFilesDir)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	return s
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the hub and the event forwarder in the background.
func (s *Server) Start(ctx context.Context) {
	sub := s.eventBus.Subscribe(forwardedEvents...)
	go s.Hub.Run()
	go s.forwardEvents(ctx, sub)
}

// ListenAndServe starts the background workers and serves HTTP until Shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.Start(ctx)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting clients and closes the open ones.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.Hub.Stop()
	return err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		s.log.Warn("WebSocket CheckOrigin is disabled.")
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	s.log.Warnf("WebSocket connection blocked: Origin '%s' not in allowed list.", origin)
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(readLimit)

	for _, msg := range s.initialMessages() {
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Warnf("initial write failed: %v", err)
			conn.Close()
			return
		}
	}

	if !s.Hub.Register(conn) {
		conn.Close()
		return
	}
	defer s.Hub.Unregister(conn)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}
		cmd, err := ParseClientCommand(msgBytes)
		if err != nil {
			s.log.Warnf("Rejected client command: %v", err)
			continue
		}
		select {
		case s.commands <- cmd:
		case <-r.Context().Done():
			return
		}
	}
}

// initialMessages builds what a freshly connected browser needs to render.
func (s *Server) initialMessages() []Message {
	msgs := []Message{
		NewMessage("snapshot", s.snapshot()),
		NewMessage("catalog", Catalog()),
		NewMessage("schema", s.schema.Fields),
	}
	if s.patterns != nil {
		if patterns, err := s.patterns.GetPatternList(); err == nil {
			msgs = append(msgs, NewMessage("pattern_list", patterns))
		}
	}
	if s.schedules != nil {
		msgs = append(msgs, NewMessage("schedule_list", s.schedules.GetAll()))
	}
	return msgs
}

// forwardedEvents are the bus events browsers are told about.
var forwardedEvents = []core.EventType{
	core.SettingsChangedEvent,
	core.SwatchesChangedEvent,
	core.ConnectionChangedEvent,
	core.NotificationChangedEvent,
	core.PatternChangedEvent,
	core.LoopChangedEvent,
	core.SchedulesChangedEvent,
	core.PatternsChangedEvent,
	core.PatternCodeEvent,
}

// forwardEvents relays bus events to browsers until ctx is done.
func (s *Server) forwardEvents(ctx context.Context, sub core.Subscriber) {
	defer s.eventBus.Unsubscribe(sub, forwardedEvents...)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub:
			if event.Type == core.SwatchesChangedEvent {
				s.Hub.BroadcastSwatches(NewMessage("swatches_update", event.Payload))
				continue
			}
			s.Hub.Broadcast(NewMessage(eventMessageType(event.Type), event.Payload))
		}
	}
}

func eventMessageType(t core.EventType) string {
	switch t {
	case core.SettingsChangedEvent:
		return "settings_update"
	case core.ConnectionChangedEvent:
		return "connection_update"
	case core.NotificationChangedEvent:
		return "notification_update"
	case core.PatternChangedEvent:
		return "pattern_status"
	case core.LoopChangedEvent:
		return "loop_status"
	case core.SchedulesChangedEvent:
		return "schedule_list"
	case core.PatternsChangedEvent:
		return "pattern_list"
	case core.PatternCodeEvent:
		return "pattern_code"
	}
	return string(t)
}

// ModeInfo describes one LED mode for the UI.
type ModeInfo struct {
	Name    string   `json:"name"`
	Ordinal int      `json:"ordinal"`
	Help    []string `json:"help,omitempty"`
}

// CatalogPayload is the static table set the UI renders buttons from.
type CatalogPayload struct {
	Presets    []presets.Preset `json:"presets"`
	Palettes   []string         `json:"palettes"`
	LedModes   []ModeInfo       `json:"ledModes"`
	ColorModes []ModeInfo       `json:"colorModes"`
}

// Catalog assembles the static tables.
func Catalog() CatalogPayload {
	c := CatalogPayload{Presets: presets.All(), Palettes: presets.Palettes}
	for _, m := range protocol.LedModes() {
		c.LedModes = append(c.LedModes, ModeInfo{Name: m.String(), Ordinal: int(m), Help: presets.ModeHelp(m)})
	}
	for _, m := range protocol.ColorModes() {
		c.ColorModes = append(c.ColorModes, ModeInfo{Name: m.String(), Ordinal: int(m)})
	}
	return c
}
