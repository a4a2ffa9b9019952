package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/scott-cotton/cli"

	"github.com/signadot/docsync/change"
)

type FmtDiffConfig struct {
	*MainConfig
	FmtDiff *cli.Command
}

func FmtDiffCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &FmtDiffConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.FmtDiff, "fmtdiff").
		WithSynopsis("fmtdiff <file-a> <file-b>").
		WithDescription("print the change taking file-a to file-b, in wire form").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return fmtDiff(cfg, cc, args)
		})
}

func fmtDiff(cfg *FmtDiffConfig, cc *cli.Context, args []string) error {
	args, err := cfg.FmtDiff.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return fmt.Errorf("fmtdiff takes exactly two files")
	}
	a, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	b, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	ch := change.Make(string(a), string(b))
	if ch.Empty() {
		return nil
	}
	text := ch.String()

	if f, ok := cc.Out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		for _, line := range strings.SplitAfter(text, "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				fmt.Fprint(cc.Out, color.GreenString("%s", line))
			case strings.HasPrefix(line, "-"):
				fmt.Fprint(cc.Out, color.RedString("%s", line))
			default:
				fmt.Fprint(cc.Out, line)
			}
		}
		return nil
	}
	fmt.Fprint(cc.Out, text)
	return nil
}
