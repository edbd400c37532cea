// Command mrc-asm assembles 8086 source text into a raw binary image,
// per spec.md §4.4 and §6: one positional source path, -o/--output for the
// image, per-diagnostic source-pointed errors to stderr and a non-zero
// exit with no output file written on any diagnostic.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mrc-go/mrc/internal/assembler"
	"github.com/mrc-go/mrc/internal/errs"
	"github.com/mrc-go/mrc/internal/parser"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	flagOutput string
	flagOrigin uint16
	flagSyms   bool
)

func main() {
	root := &cobra.Command{
		Use:          "mrc-asm <source>",
		Short:        "Assemble 8086 source text into a raw binary image",
		Version:      version,
		Args:         cobra.ExactArgs(1),
		RunE:         runAssemble,
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&flagOutput, "output", "o", "a.bin", "output binary path")
	root.Flags().Uint16Var(&flagOrigin, "origin", 0, "byte offset the image is laid out from")
	root.Flags().BoolVar(&flagSyms, "symbols", false, "print the resolved symbol table to stdout")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("mrc-asm: %v", err))
		os.Exit(1)
	}
}

func runAssemble(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	prog, err := parser.NewParser(string(src)).ParseProgram()
	if err != nil {
		printDiagnostic(err)
		return fmt.Errorf("parse failed")
	}

	out, diags := assembler.Assemble(prog, flagOrigin)
	if len(diags) > 0 {
		lines := strings.Split(string(src), "\n")
		fmt.Fprint(os.Stderr, diags.Render(lines))
		return fmt.Errorf("assembly failed with %d diagnostic(s)", len(diags))
	}

	if err := os.WriteFile(flagOutput, out.Bytes, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", flagOutput, err)
	}

	if flagSyms {
		for name, val := range out.Symbols.All() {
			fmt.Printf("%-24s 0x%04X\n", name, val)
		}
	}
	return nil
}

// printDiagnostic reports a single parse-phase error (no span recovery:
// the parser never accumulates, per spec.md §7's "decoder and parser never
// recover internally").
func printDiagnostic(err error) {
	if e, ok := err.(*errs.Error); ok {
		fmt.Fprintln(os.Stderr, color.RedString("%s: %s", e.Kind, e.Message))
		return
	}
	fmt.Fprintln(os.Stderr, color.RedString("%v", err))
}
