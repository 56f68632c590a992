package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ledstrip-remote/internal/presets"
	"ledstrip-remote/internal/protocol"
)

var cmdPresets = &cobra.Command{
	Use:   `presets`,
	Short: "list presets, LED modes, colour modes and palettes",
	Args:  cobra.NoArgs,
	Run:   listPresets,
}

func listPresets(c *cobra.Command, args []string) {
	out := c.OutOrStdout()

	fmt.Fprintln(out, "Presets:")
	for _, p := range presets.All() {
		fmt.Fprintf(out, "  %-20s %s\n", p.Name, p.Patch)
	}

	fmt.Fprintln(out, "LED modes:")
	for _, m := range protocol.LedModes() {
		fmt.Fprintf(out, "  %d %-8s %s\n", int(m), m, strings.Join(presets.ModeHelp(m), "; "))
	}

	fmt.Fprintln(out, "Colour modes:")
	for _, m := range protocol.ColorModes() {
		fmt.Fprintf(out, "  %d %s\n", int(m), m)
	}

	fmt.Fprintln(out, "Palettes:")
	for i, p := range presets.Palettes {
		fmt.Fprintf(out, "  %d %s\n", i, p)
	}
}
