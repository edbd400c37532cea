// Command mrc-dis disassembles a raw 8086 binary image to stdout, one
// `segment:offset  bytes  mnemonic` line per instruction (or a `db`
// fallback line on a decode failure), per spec.md §4.6 and §6.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mrc-go/mrc/internal/disasm"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	flagOrigin string
	flagUpper  bool
)

func main() {
	root := &cobra.Command{
		Use:     "mrc-dis <binary>",
		Short:   "Disassemble a raw 8086 binary image",
		Version: version,
		Args:    cobra.ExactArgs(1),
		RunE:    runDisasm,
		SilenceUsage: true,
	}
	root.Flags().StringVar(&flagOrigin, "origin", "0000:0000", "segment:offset the image is loaded at")
	root.Flags().BoolVar(&flagUpper, "upper", false, "render register names in upper case")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("mrc-dis: %v", err))
		os.Exit(1)
	}
}

func runDisasm(cmd *cobra.Command, args []string) error {
	seg, off, err := parseSegOff(flagOrigin)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	style := disasm.DefaultStyle
	if flagUpper {
		style.RegisterCase = disasm.Upper
	}

	sec := disasm.Section{Segment: seg, Offset: off, Bytes: data}
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)
	for _, line := range disasm.WalkSection(sec, style) {
		rendered := line.Render()
		if strings.HasPrefix(line.Text, "db ") {
			dim.Println(rendered)
		} else {
			bold.Println(rendered)
		}
	}
	return nil
}

// parseSegOff parses a "SSSS:OOOO" hex pair, the form both --origin here and
// cmd/mrc-emu's --origin flag share.
func parseSegOff(s string) (seg, off uint16, err error) {
	var segV, offV uint32
	n, scanErr := fmt.Sscanf(s, "%x:%x", &segV, &offV)
	if scanErr != nil || n != 2 {
		return 0, 0, fmt.Errorf("invalid segment:offset %q (want SSSS:OOOO hex)", s)
	}
	return uint16(segV), uint16(offV), nil
}
