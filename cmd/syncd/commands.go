package main

import (
	"github.com/scott-cotton/cli"
)

type MainConfig struct {
	Main *cli.Command
}

func MainCommand() *cli.Command {
	cfg := &MainConfig{}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Main, "syncd").
		WithSynopsis("syncd command [opts]").
		WithDescription("syncd serves and follows synchronized documents.").
		WithOpts(opts...).
		WithSubs(
			ServeCommand(cfg),
			TailCommand(cfg),
			FmtDiffCommand(cfg),
		)
}
