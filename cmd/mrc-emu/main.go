// Command mrc-emu runs a raw 8086 binary image headlessly, replacing the
// reference LED-panel GUI (out of scope per spec.md §1) with a structured
// log of every port write the CPU performs, per spec.md §6.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mrc-go/mrc/internal/cpu"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	flagOrigin string
	flagPorts  int
	flagMax    uint64
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:          "mrc-emu <binary>",
		Short:        "Run a raw 8086 binary image headlessly",
		Version:      version,
		Args:         cobra.ExactArgs(1),
		RunE:         runEmu,
		SilenceUsage: true,
	}
	root.Flags().StringVar(&flagOrigin, "origin", "0000:0000", "segment:offset the image is loaded at")
	root.Flags().IntVar(&flagPorts, "ports", 8, "number of I/O ports to expose (matches the LED-panel reference)")
	root.Flags().Uint64Var(&flagMax, "max-steps", 0, "stop after this many instructions (0 = run to HLT)")
	root.Flags().BoolVar(&flagVerbose, "verbose", false, "log every instruction step, not just port writes and halts")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mrc-emu:", err)
		os.Exit(1)
	}
}

func runEmu(cmd *cobra.Command, args []string) error {
	seg, off, err := parseSegOff(flagOrigin)
	if err != nil {
		return err
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: false})

	ram := cpu.NewRAM(1 << 20)
	if err := ram.LoadAt(cpu.Linear(seg, off), image); err != nil {
		return fmt.Errorf("loading image: %w", err)
	}

	ports := &loggingPorts{inner: cpu.NewPortArray(flagPorts), log: log}
	c := cpu.New(ram, ports)
	c.SetOrigin(seg, off)
	c.Log = log
	if flagVerbose {
		log.SetLevel(logrus.DebugLevel)
		c.Tick = func(steps uint64) {
			log.WithField("steps", steps).WithField("ip", fmt.Sprintf("0x%04X", c.IP)).Debug("step")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	runErr := c.Run(ctx, flagMax)

	snap := ports.inner.Snapshot()
	log.WithField("ports", fmt.Sprintf("%v", snap)).WithField("steps", c.Steps).Info("run finished")

	if runErr != nil {
		var halt *cpu.HaltError
		if as(runErr, &halt) {
			log.WithError(halt).Error("cpu halted with a fatal error")
			return fmt.Errorf("run failed: %w", runErr)
		}
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

func as(err error, target **cpu.HaltError) bool {
	h, ok := err.(*cpu.HaltError)
	if ok {
		*target = h
	}
	return ok
}

// loggingPorts wraps a cpu.PortArray and logs every write through, standing
// in for the reference LED panel's visual feedback per spec.md §6.
type loggingPorts struct {
	inner *cpu.PortArray
	log   *logrus.Logger
}

func (p *loggingPorts) Read(port uint16) (byte, error) {
	return p.inner.Read(port)
}

func (p *loggingPorts) Write(port uint16, value byte) error {
	if err := p.inner.Write(port, value); err != nil {
		return err
	}
	p.log.WithField("port", port).WithField("value", fmt.Sprintf("0x%02X", value)).Info("port write")
	return nil
}

func parseSegOff(s string) (seg, off uint16, err error) {
	var segV, offV uint32
	n, scanErr := fmt.Sscanf(s, "%x:%x", &segV, &offV)
	if scanErr != nil || n != 2 {
		return 0, 0, fmt.Errorf("invalid segment:offset %q (want SSSS:OOOO hex)", s)
	}
	return uint16(segV), uint16(offV), nil
}
