package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aerolink/mavbridge/cmd/mavbridge/decode"
	"github.com/aerolink/mavbridge/cmd/mavbridge/run"
	"github.com/aerolink/mavbridge/cmd/mavbridge/sim"
	"github.com/aerolink/mavbridge/cmd/mavbridge/subcmd"
	"github.com/aerolink/mavbridge/internal/config"
	"github.com/aerolink/mavbridge/log2"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	decode.Mod,
	sim.Mod,
}

func main() {
	flags := flag.NewFlagSet("mavbridge", flag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "HCL config file, empty = defaults")
	logDebug := flags.Bool("debug", false, "debug log level, overrides config")
	flags.SetInterspersed(false)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: mavbridge [flags] command [command flags]\n\ncommands:\n")
		for _, m := range modules {
			fmt.Fprintf(os.Stderr, "  %-8s %s\n", m.Name, m.Usage)
		}
		fmt.Fprintf(os.Stderr, "\nflags:\n%s", flags.FlagUsages())
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	mod, err := subcmd.Parse(flags.Arg(0), modules)
	if err != nil {
		flags.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	var fs config.FullReader = config.NewOsFullReader()
	name := *configPath
	if name == "" {
		name = "builtin-defaults"
		fs = config.NewMockFullReader(map[string]string{name: ""})
	}
	cfg, err := config.Read(log, fs, name)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	if !cfg.LogDebug && !*logDebug {
		log.SetLevel(log2.LInfo)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := &subcmd.Env{Config: cfg, Log: log, Args: flags.Args()[1:]}
	if err := mod.Main(ctx, env); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
