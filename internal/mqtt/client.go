// Package mqtt bridges the settings model to an MQTT broker and announces the strip
// to Home Assistant.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ledstrip-remote/internal/config"
	"ledstrip-remote/internal/core"
	"ledstrip-remote/internal/protocol"
)

type Client struct {
	client   mqtt.Client
	cfg      config.MQTTConfig
	commands core.CommandChannel
	eventBus *core.EventBus
	prefix   string
	log      logrus.FieldLogger

	swatchLimiter *rate.Limiter
}

// NewClient builds the client. It returns nil when MQTT is disabled.
func NewClient(cfg config.MQTTConfig, commands core.CommandChannel, eventBus *core.EventBus, log logrus.FieldLogger) *Client {
	if !cfg.Enabled {
		return nil
	}

	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	// Keep retrying at startup; the broker container may come up after us.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetWill(prefix+"/availability", "offline", 1, true)

	c := &Client{
		cfg:           cfg,
		commands:      commands,
		eventBus:      eventBus,
		prefix:        prefix,
		log:           log,
		swatchLimiter: rate.NewLimiter(rate.Limit(cfg.SwatchRate), 1),
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.log.Warnf("Connection lost: %v. Retrying in background...", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		c.log.Info("Attempting to reconnect...")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect starts the connection loop and waits for the first handshake attempt.
func (c *Client) Connect() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.log.Infof("Starting connection loop to %s...", c.cfg.Broker)

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		c.log.Errorf("Initial connection error: %v", token.Error())
		return token.Error()
	}
	return nil
}

// Disconnect publishes offline and closes the connection.
func (c *Client) Disconnect() {
	if c == nil || c.client == nil || !c.client.IsConnected() {
		return
	}
	c.log.Info("Disconnecting...")

	token := c.client.Publish(c.prefix+"/availability", 0, true, "offline")
	if token.WaitTimeout(2 * time.Second) {
		if token.Error() != nil {
			c.log.Warnf("failed to publish offline status: %v", token.Error())
		}
	} else {
		c.log.Warn("timed out publishing offline status")
	}

	c.client.Disconnect(250)
	c.log.Info("Disconnected.")
}

// Publish sends payload to <prefix>/<subtopic> without blocking the caller.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}

	topic := fmt.Sprintf("%s/%s", c.prefix, subtopic)
	var msg interface{}
	switch p := payload.(type) {
	case string, []byte:
		msg = p
	default:
		msg = fmt.Sprintf("%v", p)
	}

	token := c.client.Publish(topic, 0, retained, msg)
	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				c.log.Warnf("Publish error to %s: %v", topic, token.Error())
			}
		} else {
			c.log.Warnf("Timeout publishing to %s", topic)
		}
	}()
}

// Run mirrors bus events to state topics until ctx is done.
func (c *Client) Run(ctx context.Context) {
	if c == nil {
		return
	}
	types := []core.EventType{core.SettingsChangedEvent, core.ConnectionChangedEvent, core.SwatchesChangedEvent}
	sub := c.eventBus.Subscribe(types...)
	defer c.eventBus.Unsubscribe(sub, types...)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub:
			c.publishEvent(event)
		}
	}
}

func (c *Client) publishEvent(event core.Event) {
	switch event.Type {
	case core.SettingsChangedEvent:
		rec, ok := event.Payload.(protocol.Settings)
		if !ok {
			return
		}
		data, err := json.Marshal(rec)
		if err != nil {
			c.log.Errorf("Error marshalling settings: %v", err)
			return
		}
		c.Publish("settings/state", data, true)
		c.Publish("brightness/state", rec.Brightness, true)
		c.Publish("mode/state", rec.LedMode.String(), true)

	case core.ConnectionChangedEvent:
		if state, ok := event.Payload.(string); ok {
			c.Publish("connection", connectionPayload(state), true)
		}

	case core.SwatchesChangedEvent:
		if !c.cfg.PublishSwatches || !c.swatchLimiter.Allow() {
			return
		}
		if list, ok := event.Payload.([]string); ok {
			data, _ := json.Marshal(list)
			c.Publish("swatches/state", data, false)
		}
	}
}

func connectionPayload(state string) string {
	if state == "open" {
		return "connected"
	}
	return "disconnected"
}

// subscriptions are the command subtopics understood by TopicCommand.
var subscriptions = []string{
	"settings/set",
	"brightness/set",
	"mode/set",
	"color_mode/set",
	"preset/set",
	"loop/set",
	"send",
}

// onConnect runs on a paho goroutine.
func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info("Connected to broker.")

	for _, sub := range subscriptions {
		sub := sub
		topic := fmt.Sprintf("%s/%s", c.prefix, sub)
		handler := func(client mqtt.Client, msg mqtt.Message) {
			c.handle(sub, msg.Payload())
		}
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			c.log.Errorf("Error subscribing to %s: %v", topic, token.Error())
		} else {
			c.log.Debugf("Subscribed to %s", topic)
		}
	}

	// PublishHADiscovery sleeps; keep it off the paho callback goroutine.
	go func() {
		c.Publish("availability", "online", true)
		if c.cfg.HADiscoveryEnabled {
			c.PublishHADiscovery()
		}
	}()
}

func (c *Client) handle(subtopic string, payload []byte) {
	cmd, err := TopicCommand(subtopic, payload)
	if err != nil {
		c.log.Warnf("Ignoring message on %s: %v", subtopic, err)
		return
	}
	c.commands <- cmd
}

// TopicCommand converts a message on one of the command subtopics into a core command.
func TopicCommand(subtopic string, payload []byte) (core.Command, error) {
	text := strings.TrimSpace(string(payload))

	switch subtopic {
	case "settings/set":
		var raw map[string]interface{}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return core.Command{}, fmt.Errorf("settings patch: %w", err)
		}
		patch, err := protocol.ParsePatch(raw)
		if err != nil {
			return core.Command{}, err
		}
		return core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{"patch": patch}}, nil

	case "brightness/set":
		v, err := strconv.Atoi(text)
		if err != nil {
			return core.Command{}, fmt.Errorf("brightness: %w", err)
		}
		return core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{
			"patch": protocol.Patch{protocol.FieldBrightness: v},
		}}, nil

	case "mode/set":
		if _, err := protocol.ParseLedMode(text); err != nil {
			return core.Command{}, err
		}
		return core.Command{Type: core.CmdSetMode, Payload: map[string]interface{}{"ledMode": text}}, nil

	case "color_mode/set":
		m, err := protocol.ParseColorMode(text)
		if err != nil {
			return core.Command{}, err
		}
		return core.Command{Type: core.CmdApplyPatch, Payload: map[string]interface{}{
			"patch": protocol.Patch{protocol.FieldColorMode: int(m)},
		}}, nil

	case "preset/set":
		if text == "" {
			return core.Command{}, fmt.Errorf("empty preset name")
		}
		return core.Command{Type: core.CmdApplyPreset, Payload: map[string]interface{}{"name": text}}, nil

	case "loop/set":
		switch strings.ToLower(text) {
		case "on", "true", "1":
			return core.Command{Type: core.CmdSetLoop, Payload: map[string]interface{}{"on": true}}, nil
		case "off", "false", "0":
			return core.Command{Type: core.CmdSetLoop, Payload: map[string]interface{}{"on": false}}, nil
		}
		return core.Command{}, fmt.Errorf("loop expects on or off, got %q", text)

	case "send":
		switch strings.ToLower(text) {
		case "", "send":
			return core.Command{Type: core.CmdSendNow}, nil
		case "off":
			return core.Command{}, fmt.Errorf("the strip has no off state")
		}
		return core.Command{}, fmt.Errorf("send expects no payload, got %q", text)
	}
	return core.Command{}, fmt.Errorf("unknown subtopic %q", subtopic)
}

// PublishHADiscovery announces the strip as a Home Assistant light.
func (c *Client) PublishHADiscovery() {
	// Give the subscriptions a moment to settle.
	time.Sleep(1 * time.Second)

	topic, payload := DiscoveryConfig(c.cfg.ClientID, c.cfg.HADiscoveryPrefix, c.prefix)
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Errorf("Error marshalling discovery payload: %v", err)
		return
	}
	c.client.Publish(topic, 0, true, data)
	c.log.Infof("HA Discovery sent to %s", topic)
}

// DiscoveryConfig returns the discovery topic and payload for the light entity.
func DiscoveryConfig(clientID, discoveryPrefix, prefix string) (string, map[string]interface{}) {
	safeID := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		if r == ' ' {
			return '_'
		}
		return -1
	}, clientID)

	effects := []string{}
	for _, m := range protocol.LedModes() {
		effects = append(effects, m.String())
	}

	topic := fmt.Sprintf("%s/light/%s/light/config", discoveryPrefix, safeID)
	payload := map[string]interface{}{
		"name":      "LED Strip",
		"unique_id": safeID + "_light",
		"object_id": safeID,
		"icon":      "mdi:led-strip-variant",

		// The strip has no power toggle; brightness 1 is its dimmest on-state.
		"command_topic": fmt.Sprintf("%s/send", prefix),
		"payload_on":    "send",
		"payload_off":   "off",
		"optimistic":    true,

		"brightness_command_topic": fmt.Sprintf("%s/brightness/set", prefix),
		"brightness_state_topic":   fmt.Sprintf("%s/brightness/state", prefix),
		"brightness_scale":         255,

		"effect_command_topic": fmt.Sprintf("%s/mode/set", prefix),
		"effect_state_topic":   fmt.Sprintf("%s/mode/state", prefix),
		"effect_list":          effects,

		"availability_mode": "all",
		"availability": []map[string]string{
			{
				"topic":                 fmt.Sprintf("%s/availability", prefix),
				"payload_available":     "online",
				"payload_not_available": "offline",
			},
			{
				"topic":                 fmt.Sprintf("%s/connection", prefix),
				"payload_available":     "connected",
				"payload_not_available": "disconnected",
			},
		},

		"device": map[string]interface{}{
			"identifiers":  []string{safeID},
			"name":         "LED Strip Remote",
			"manufacturer": "ledstrip-remote",
			"model":        "WebSocket LED controller",
		},
	}
	return topic, payload
}
