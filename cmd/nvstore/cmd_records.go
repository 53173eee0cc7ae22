package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/outofforest/nvstore"
	"github.com/outofforest/nvstore/blocks/identity"
	"github.com/outofforest/nvstore/blocks/key"
)

type keysCmd struct{}

func (*keysCmd) Name() string             { return "keys" }
func (*keysCmd) Synopsis() string         { return "list bypass keys" }
func (*keysCmd) Usage() string            { return "keys\n" }
func (*keysCmd) SetFlags(_ *flag.FlagSet) {}

func (*keysCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		slots, err := e.Keys().Slots()
		if err != nil {
			return e.Observe(err)
		}
		values, err := e.Keys().GetMany(0, slots)
		if err != nil {
			return e.Observe(err)
		}
		for i, v := range values {
			if v != (key.Value{}) {
				fmt.Printf("%4d  %s\n", i, formatValue(v))
			}
		}
		digest, err := e.Keys().Digest()
		if err != nil {
			return e.Observe(err)
		}
		fmt.Printf("digest: %016x\n", digest)
		return nil
	})
}

type keyPutCmd struct {
	index int
}

func (*keyPutCmd) Name() string     { return "key-put" }
func (*keyPutCmd) Synopsis() string { return "register bypass key" }
func (*keyPutCmd) Usage() string {
	return "key-put [-index n] AA:BB:CC:DD:EE:FF\n\nStores the key in the given slot, or in the first free one.\n"
}

func (c *keyPutCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.index, "index", -1, "slot to store the key in")
}

func (c *keyPutCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withEngine(func(e *nvstore.Engine) error {
		v, err := parseValue(f.Arg(0))
		if err != nil {
			return err
		}
		if c.index >= 0 {
			return e.Observe(e.Keys().Put(v, uint32(c.index)))
		}
		index, err := e.Keys().EnsureKey(v)
		if err != nil {
			return e.Observe(err)
		}
		fmt.Printf("stored in slot %d\n", index)
		return nil
	})
}

type keyDelCmd struct{}

func (*keyDelCmd) Name() string             { return "key-del" }
func (*keyDelCmd) Synopsis() string         { return "revoke bypass key" }
func (*keyDelCmd) Usage() string            { return "key-del AA:BB:CC:DD:EE:FF\n" }
func (*keyDelCmd) SetFlags(_ *flag.FlagSet) {}

func (*keyDelCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withEngine(func(e *nvstore.Engine) error {
		v, err := parseValue(f.Arg(0))
		if err != nil {
			return err
		}
		return e.Observe(e.Keys().Revoke(v))
	})
}

type keysEraseCmd struct{}

func (*keysEraseCmd) Name() string             { return "keys-erase" }
func (*keysEraseCmd) Synopsis() string         { return "erase every bypass key" }
func (*keysEraseCmd) Usage() string            { return "keys-erase\n" }
func (*keysEraseCmd) SetFlags(_ *flag.FlagSet) {}

func (*keysEraseCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		return e.EraseKeys()
	})
}

type trucksCmd struct {
	start int
	count int
}

func (*trucksCmd) Name() string     { return "trucks" }
func (*trucksCmd) Synopsis() string { return "list truck identities" }
func (*trucksCmd) Usage() string    { return "trucks [-start n] [-count n]\n" }

func (c *trucksCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.start, "start", 0, "first slot")
	f.IntVar(&c.count, "count", 0, "number of slots, all by default")
}

func (c *trucksCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		if c.start < 0 || c.count < 0 {
			return errors.New("start and count must not be negative")
		}
		slots, err := e.Trucks().Slots()
		if err != nil {
			return e.Observe(err)
		}
		count := uint32(c.count)
		if count == 0 && uint32(c.start) < slots {
			count = slots - uint32(c.start)
		}
		values, err := e.Trucks().GetMany(uint32(c.start), count)
		if err != nil {
			return e.Observe(err)
		}
		for i, v := range values {
			if v != (identity.Value{}) {
				fmt.Printf("%5d  %s\n", c.start+i, formatValue(v))
			}
		}
		n, err := e.Trucks().Count()
		if err != nil {
			return e.Observe(err)
		}
		fmt.Printf("registered: %d of %d\n", n, slots)
		return nil
	})
}

type truckPutCmd struct{}

func (*truckPutCmd) Name() string             { return "truck-put" }
func (*truckPutCmd) Synopsis() string         { return "register truck identities" }
func (*truckPutCmd) Usage() string            { return "truck-put ID...\n\nIDs are 6 hex bytes, the first one zero.\n" }
func (*truckPutCmd) SetFlags(_ *flag.FlagSet) {}

func (*truckPutCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withEngine(func(e *nvstore.Engine) error {
		for _, arg := range f.Args() {
			v, err := parseValue(arg)
			if err != nil {
				return err
			}
			index, err := e.Trucks().EnsureTruck(v)
			if err != nil {
				return e.Observe(err)
			}
			fmt.Printf("%s stored in slot %d\n", formatValue(v), index)
		}
		return nil
	})
}

type truckDelCmd struct{}

func (*truckDelCmd) Name() string             { return "truck-del" }
func (*truckDelCmd) Synopsis() string         { return "delete truck identity slot" }
func (*truckDelCmd) Usage() string            { return "truck-del SLOT\n" }
func (*truckDelCmd) SetFlags(_ *flag.FlagSet) {}

func (*truckDelCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return withEngine(func(e *nvstore.Engine) error {
		index, err := strconv.ParseUint(f.Arg(0), 10, 32)
		if err != nil {
			return errors.WithStack(err)
		}
		return e.Observe(e.Trucks().Delete(uint32(index)))
	})
}

type trucksEraseCmd struct{}

func (*trucksEraseCmd) Name() string             { return "trucks-erase" }
func (*trucksEraseCmd) Synopsis() string         { return "erase every truck identity" }
func (*trucksEraseCmd) Usage() string            { return "trucks-erase\n" }
func (*trucksEraseCmd) SetFlags(_ *flag.FlagSet) {}

func (*trucksEraseCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withEngine(func(e *nvstore.Engine) error {
		return e.EraseTrucks()
	})
}
