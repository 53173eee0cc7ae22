package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

var (
	configPath = flag.String("config", "nvstore.yaml", "path of the configuration file")
	verbose    = flag.Bool("v", false, "log debug messages")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&createCmd{}, "image")
	subcommands.Register(&formatCmd{}, "store")
	subcommands.Register(&statusCmd{}, "store")
	subcommands.Register(&auditCmd{}, "store")
	subcommands.Register(&dumpCmd{}, "store")
	subcommands.Register(&keysCmd{}, "keys")
	subcommands.Register(&keyPutCmd{}, "keys")
	subcommands.Register(&keyDelCmd{}, "keys")
	subcommands.Register(&keysEraseCmd{}, "keys")
	subcommands.Register(&trucksCmd{}, "trucks")
	subcommands.Register(&truckPutCmd{}, "trucks")
	subcommands.Register(&truckDelCmd{}, "trucks")
	subcommands.Register(&trucksEraseCmd{}, "trucks")
	subcommands.Register(&logCmd{}, "log")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
