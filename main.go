package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/username/tradejournal/backend/src/commands"
	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/logger"
)

func main() {
	config.LoadConfig()
	// Logs go to stderr so report and import output on stdout stays clean.
	logger.InitLoggerTo(os.Stderr, config.Cfg.LogLevel)

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range commands.Commands {
		commander.Register(c, "")
	}

	flag.Parse()
	if flag.NArg() == 0 {
		flag.CommandLine.Parse([]string{"serve"})
	}
	os.Exit(int(commander.Execute(context.Background())))
}
