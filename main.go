// main.go - command-line entry point
//
// Cobra subcommand structure ported from z80-optimizer's cmd/z80opt/main.go
// (root command plus flag-bearing subcommands returning wrapped errors from
// RunE); the interactive single-step console is grounded on the raw-terminal
// pattern IntuitionEngine reaches for via golang.org/x/term.

package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "x86boot",
		Short: "x86/x86-64 boot-firmware emulator core",
	}

	var mode string
	var debug bool
	var memSize int
	var maxInstructions uint64

	runCmd := &cobra.Command{
		Use:   "run [image]",
		Short: "Boot a disk image and run it to completion or a fault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(args[0], mode, debug, memSize, maxInstructions)
		},
	}
	runCmd.Flags().StringVar(&mode, "mode", "real16", "starting mode: real16, pm32, or long64")
	runCmd.Flags().BoolVar(&debug, "debug", false, "single-step in an interactive debug console")
	runCmd.Flags().IntVar(&memSize, "mem", 16*1024*1024, "guest physical memory size in bytes")
	runCmd.Flags().Uint64Var(&maxInstructions, "max-instructions", 0, "stop after N instructions (0 = unbounded)")

	rootCmd.AddCommand(runCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runImage boots path as a raw disk image attached as the primary BIOS disk,
// places the CPU in the requested starting mode, and runs it per spec.md §6's
// boot-input contract (CS:IP = 0000:7C00, DL = boot drive).
func runImage(path, mode string, debug bool, memSize int, maxInstructions uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat image: %w", err)
	}

	mem := NewMemory(memSize)
	if err := mem.LoadBootSector(f); err != nil {
		return fmt.Errorf("load boot sector: %w", err)
	}

	c := NewCPU(mem, nil)
	c.Regs.Write(RegRDX, W8, 0x80) // DL = boot drive (first hard disk)

	disk := NewFileBlockDevice(f, uint32(info.Size()/(63*16*512))+1, 16, 63)
	c.bios.SetBlockDevice(disk)

	switch mode {
	case "real16":
	case "pm32":
		c.EnterProtectedModeFlat()
	case "long64":
		c.EnterLongModeFlat()
	default:
		return fmt.Errorf("unknown --mode %q: want real16, pm32, or long64", mode)
	}

	if debug {
		return runDebugConsole(c, maxInstructions)
	}

	c.Run(maxInstructions)
	reportOutcome(c)
	return nil
}

// runDebugConsole single-steps the CPU, printing a register snapshot after
// each instruction, advancing on any keypress read from a raw terminal.
func runDebugConsole(c *CPU, maxInstructions uint64) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw terminal mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	r := bufio.NewReader(os.Stdin)
	for !c.Halted {
		if maxInstructions != 0 && c.RetiredInstructions >= maxInstructions {
			break
		}
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b == 'q' {
			break
		}
		result := c.Step()
		s := c.Snapshot()
		fmt.Fprintf(os.Stdout, "\r\nRIP=%016X RFLAGS=%08X RAX=%016X RSP=%016X",
			s.RIP, s.RFlags, s.Regs[RegRAX], s.Regs[RegRSP])
		if result.Fault != nil {
			fmt.Fprintf(os.Stdout, "  fault=%v", result.Fault)
		}
	}
	return nil
}

func reportOutcome(c *CPU) {
	s := c.Snapshot()
	fmt.Printf("halted after %d instructions: RIP=%016X RFLAGS=%08X\n",
		c.RetiredInstructions, s.RIP, s.RFlags)
}
