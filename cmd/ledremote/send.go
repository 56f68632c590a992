package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"ledstrip-remote/internal/config"
	"ledstrip-remote/internal/device"
	"ledstrip-remote/internal/presets"
	"ledstrip-remote/internal/protocol"
)

var (
	flagPreset  string
	flagMode    string
	flagSet     []string
	flagTimeout time.Duration

	cmdSend = &cobra.Command{
		Use:   `send`,
		Short: "send one settings record to the strip and exit",
		Args:  cobra.NoArgs,
		RunE:  sendRecord,
	}

	cmdEncode = &cobra.Command{
		Use:   `encode`,
		Short: "print the wire line for a settings record without connecting",
		Args:  cobra.NoArgs,
		RunE:  encodeRecord,
	}
)

func init() {
	for _, c := range []*cobra.Command{cmdSend, cmdEncode} {
		c.Flags().StringVarP(&flagPreset, `preset`, `p`, ``, `start from a named preset`)
		c.Flags().StringVarP(&flagMode, `mode`, `m`, ``, `LED mode name, resets the mode option`)
		c.Flags().StringSliceVarP(&flagSet, `set`, `s`, nil, `field=value overrides, e.g. bpm=120,h=40`)
	}
	cmdSend.Flags().DurationVarP(&flagTimeout, `timeout`, `t`, 5*time.Second, `how long to wait for the connection`)
}

// buildRecord layers preset, mode and explicit fields over the defaults, in that order.
func buildRecord(preset, mode string, sets []string) (protocol.Settings, error) {
	rec := protocol.DefaultSettings()
	if preset != "" {
		p, err := presets.Lookup(preset)
		if err != nil {
			return rec, err
		}
		rec = rec.Merge(p.Patch)
	}
	if mode != "" {
		m, err := protocol.ParseLedMode(mode)
		if err != nil {
			return rec, err
		}
		rec = rec.Merge(presets.ModePatch(m))
	}
	raw := make(map[string]interface{}, len(sets))
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return rec, fmt.Errorf("--set %q: want field=value", kv)
		}
		if n, err := strconv.Atoi(v); err == nil {
			raw[strings.TrimSpace(k)] = n
		} else {
			raw[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	patch, err := protocol.ParsePatch(raw)
	if err != nil {
		return rec, err
	}
	return rec.Merge(patch), nil
}

func encodeRecord(c *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	schema, err := cfg.Device.WireSchema()
	if err != nil {
		return err
	}
	rec, err := buildRecord(flagPreset, flagMode, flagSet)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.OutOrStdout(), protocol.NewCodec(schema).Encode(rec))
	return nil
}

func sendRecord(c *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	schema, err := cfg.Device.WireSchema()
	if err != nil {
		return err
	}
	rec, err := buildRecord(flagPreset, flagMode, flagSet)
	if err != nil {
		return err
	}

	m, err := openDevice(cfg, flagTimeout, nil)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	line := protocol.NewCodec(schema).Encode(rec)
	if err := m.Send(line); err != nil {
		return err
	}
	logger.Infof("Sent %s", line)
	return nil
}

// openDevice connects a one-off manager and waits until it is open.
func openDevice(cfg *config.Config, timeout time.Duration, onMessage func(string)) (*device.Manager, error) {
	opened := make(chan struct{})
	var once sync.Once

	m := device.NewManager(cfg.Device.Endpoint,
		device.WebsocketDialer{HandshakeTimeout: config.Duration(cfg.Device.HandshakeTimeout)},
		device.Handlers{
			OnError: func(msg string) { logger.Debugf("device: %s", msg) },
			OnOpen:  func() { once.Do(func() { close(opened) }) },
			OnMessage: func(payload string) {
				if onMessage != nil {
					onMessage(payload)
				}
			},
		},
		device.WithRetrySchedule(device.NewRetrySchedule(nil)),
		device.WithReconnectInterval(config.Duration(cfg.Device.ReconnectInterval)),
		device.WithLogger(logger.WithField("component", "device")),
	)
	m.Connect()

	select {
	case <-opened:
		return m, nil
	case <-time.After(timeout):
		m.Shutdown()
		return nil, fmt.Errorf("no connection to %s within %s", cfg.Device.Endpoint, timeout)
	}
}
