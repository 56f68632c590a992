package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ledstrip-remote/internal/protocol"
)

var flagWatchTimeout time.Duration

var cmdWatch = &cobra.Command{
	Use:   `watch`,
	Short: "print the strip's settings echoes and live colours",
	Args:  cobra.NoArgs,
	RunE:  watchDevice,
}

func init() {
	cmdWatch.Flags().DurationVarP(&flagWatchTimeout, `timeout`, `t`, 30*time.Second, `how long to wait for the first connection`)
}

func watchDevice(c *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	schema, err := cfg.Device.WireSchema()
	if err != nil {
		return err
	}
	codec := protocol.NewCodec(schema)
	out := c.OutOrStdout()

	// Frames arrive in order on the manager's read goroutine.
	m, err := openDevice(cfg, flagWatchTimeout, func(payload string) {
		msg := codec.Decode(payload)
		switch msg.Kind {
		case protocol.KindSwatches:
			printSwatches(out, msg.Swatches)
		case protocol.KindEcho:
			printEcho(out, schema, msg.Echo)
		}
	})
	if err != nil {
		return err
	}
	defer m.Shutdown()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	return nil
}

func printSwatches(w io.Writer, swatches []string) {
	var b strings.Builder
	for _, s := range swatches {
		r, g, bl, ok := parseHex(s)
		if !ok {
			b.WriteString("?")
			continue
		}
		b.WriteString(color.BgRGB(r, g, bl).Sprint(" "))
	}
	fmt.Fprintln(w, b.String())
}

func printEcho(w io.Writer, schema protocol.Schema, echo protocol.Echo) {
	parts := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		v, ok := echo.Values[f]
		if !ok {
			parts = append(parts, fmt.Sprintf("%s=?", f))
			continue
		}
		switch f {
		case protocol.FieldLedMode:
			parts = append(parts, fmt.Sprintf("%s=%s", f, protocol.LedMode(v)))
		case protocol.FieldColorMode:
			parts = append(parts, fmt.Sprintf("%s=%s", f, protocol.ColorMode(v)))
		default:
			parts = append(parts, fmt.Sprintf("%s=%d", f, v))
		}
	}
	fmt.Fprintln(w, color.CyanString("settings"), strings.Join(parts, " "))
}

// parseHex reads a "#RRGGBB" swatch token.
func parseHex(s string) (int, int, int, bool) {
	if len(s) != protocol.SwatchWidth || s[0] != '#' {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}
