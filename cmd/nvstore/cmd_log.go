package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"

	"github.com/outofforest/nvstore"
)

type logCmd struct {
	erase bool
}

func (*logCmd) Name() string     { return "log" }
func (*logCmd) Synopsis() string { return "print event log" }
func (*logCmd) Usage() string    { return "log [-erase]\n" }

func (c *logCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.erase, "erase", false, "erase the log instead of printing it")
}

func (c *logCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		if c.erase {
			return e.Observe(e.Log().Erase())
		}
		entries, err := e.Log().Entries()
		if err != nil {
			return e.Observe(err)
		}
		for _, entry := range entries {
			t := time.Unix(int64(entry.Time), 0)
			fmt.Printf("%6d  %s  (%s)  %-14s  % X\n", entry.Seq, t.UTC().Format(time.RFC3339), humanize.Time(t),
				entry.Code, entry.Arg)
		}
		return nil
	})
}
