package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/outofforest/nvstore"
	"github.com/outofforest/nvstore/audit"
	"github.com/outofforest/nvstore/blocks"
	"github.com/outofforest/nvstore/pkg/filedev"
)

type createCmd struct {
	size uint
}

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create blank EEPROM image" }
func (*createCmd) Usage() string {
	return "create [-size bytes]\n\nCreates the configured image file filled with the erased pattern.\n"
}

func (c *createCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.size, "size", 32*1024, "size of the image in bytes")
}

func (c *createCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := newLogger()
	cfg, err := loadConfig()
	if err == nil {
		err = filedev.Create(cfg.Device.Image, uint32(c.size))
	}
	if err != nil {
		log.Error(err.Error())
		return subcommands.ExitFailure
	}
	fmt.Printf("created %s, %s\n", cfg.Device.Image, humanize.IBytes(uint64(c.size)))
	return subcommands.ExitSuccess
}

type formatCmd struct{}

func (*formatCmd) Name() string             { return "format" }
func (*formatCmd) Synopsis() string         { return "format the store" }
func (*formatCmd) Usage() string            { return "format\n\nVerifies every partition and writes new Home Record.\n" }
func (*formatCmd) SetFlags(_ *flag.FlagSet) {}

func (*formatCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		report, err := e.Format()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, id := range blocks.AllPartitions {
			result := "ok"
			if ferr := report.Failures[id]; ferr != nil {
				result = ferr.Error()
			}
			fmt.Fprintf(w, "%s\t%s\n", id, result)
		}
		return w.Flush()
	})
}

type statusCmd struct{}

func (*statusCmd) Name() string             { return "status" }
func (*statusCmd) Synopsis() string         { return "print store status" }
func (*statusCmd) Usage() string            { return "status\n" }
func (*statusCmd) SetFlags(_ *flag.FlagSet) {}

func (*statusCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		s := e.Status()
		fmt.Printf("directory: %s\n", s.Directory)
		fmt.Printf("version:   %s\n", s.Version)
		fmt.Printf("valid:     %06b\n", s.Valid)
		fmt.Printf("health:    %d\n", s.Health)
		fmt.Printf("flags:     0x%04X\n", uint16(s.Flags))
		fmt.Printf("registers: %04X\n", e.StatusRegisters())
		return nil
	})
}

type auditCmd struct{}

func (*auditCmd) Name() string             { return "audit" }
func (*auditCmd) Synopsis() string         { return "verify checksums of home record and system parameters" }
func (*auditCmd) Usage() string            { return "audit\n" }
func (*auditCmd) SetFlags(_ *flag.FlagSet) {}

func (*auditCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		r, err := e.Audit()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tVALID\tENFORCED\tCOMPUTED\tSTORED")
		checks := []audit.Check{r.Home}
		if r.SysParamsReadable {
			checks = append(checks, r.SubBlocks[:]...)
		}
		for _, c := range checks {
			fmt.Fprintf(w, "%s\t%t\t%t\t%04X\t%04X\n", c.Name, c.Valid, c.Enforced, c.Computed, c.Stored)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if !r.Passed() {
			return errors.Errorf("audit failed, flags: 0x%04X", uint16(r.Flags))
		}
		return nil
	})
}

type dumpCmd struct{}

func (*dumpCmd) Name() string             { return "dump" }
func (*dumpCmd) Synopsis() string         { return "print home record and partition table" }
func (*dumpCmd) Usage() string            { return "dump\n" }
func (*dumpCmd) SetFlags(_ *flag.FlagSet) {}

func (*dumpCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		h, err := e.Directory().ReadHome()
		if err != nil {
			return err
		}

		fmt.Printf("magic:       %02X%02X\n", h.Magic[0], h.Magic[1])
		fmt.Printf("version:     %s\n", h.Version)
		fmt.Printf("serial:      %08X\n", h.Serial)
		fmt.Printf("created:     %s\n", humanize.Time(time.Unix(int64(h.Created), 0)))
		fmt.Printf("device size: %s\n", humanize.IBytes(uint64(h.DeviceSize)))
		fmt.Printf("status:      %02X\n", h.Status)
		fmt.Printf("checksum:    %04X\n\n", h.Checksum)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PARTITION\tBASE\tLENGTH\tSIZE\tVALID")
		for _, id := range blocks.AllPartitions {
			ext := h.Extent(id)
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%t\n", id, ext.Base, ext.Length, humanize.IBytes(uint64(ext.Length)),
				h.IsValid(id))
		}
		return w.Flush()
	})
}
