package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/scott-cotton/cli"

	"github.com/signadot/docsync/doclog"
	"github.com/signadot/docsync/syncer/rpctransport"
)

type TailConfig struct {
	*MainConfig
	Tail *cli.Command
	Addr string `cli:"name=addr desc='server address' default=localhost:9301"`
	From int    `cli:"name=from desc='replay updates from this version (default: live only)'"`
}

func TailCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &TailConfig{MainConfig: mainCfg, Addr: "localhost:9301", From: -1}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Tail, "tail").
		WithSynopsis("tail [-addr <addr>] [-from <version>] <doc>").
		WithDescription("follow a document's update stream").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return tail(cfg, cc, args)
		})
}

func tail(cfg *TailConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Tail.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("tail takes exactly one document name")
	}
	doc := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var opts []rpctransport.Option
	if cfg.From >= 0 {
		opts = append(opts, rpctransport.WithFromVersion(int64(cfg.From)))
	}
	clientID := "tail-" + uuid.NewString()
	tr, state, err := rpctransport.Dial(ctx, cfg.Addr, clientID, doc, opts...)
	if err != nil {
		return err
	}
	defer tr.Close()

	p := newUpdatePrinter(cc)
	fmt.Fprintf(cc.Out, "%s at version %d\n", doc, state.Version)
	for _, u := range state.Updates {
		p.print(u)
	}
	for {
		select {
		case u, ok := <-tr.Updates():
			if !ok {
				return nil
			}
			p.print(u)
		case <-ctx.Done():
			return nil
		}
	}
}

// updatePrinter renders updates, colorized on a terminal.
type updatePrinter struct {
	cc      *cli.Context
	version func(format string, a ...interface{}) string
	origin  func(format string, a ...interface{}) string
}

func newUpdatePrinter(cc *cli.Context) *updatePrinter {
	p := &updatePrinter{
		cc:      cc,
		version: fmt.Sprintf,
		origin:  fmt.Sprintf,
	}
	if f, ok := cc.Out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		p.version = color.CyanString
		p.origin = color.YellowString
	}
	return p
}

func (p *updatePrinter) print(u doclog.Update) {
	fmt.Fprintf(p.cc.Out, "%s %s\n%s",
		p.version("v%d", u.Version),
		p.origin("[%s]", u.Origin),
		u.Changes.String())
}
