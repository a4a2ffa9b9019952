package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"

	"github.com/signadot/docsync/system/syncd/server"
)

type ServeConfig struct {
	*MainConfig
	Serve      *cli.Command
	ConfigFile string `cli:"name=config desc='path to YAML config file'"`
	DataDir    string `cli:"name=data desc='directory for served documents'"`
	Addr       string `cli:"name=addr desc='TCP listen address'"`
	HTTPAddr   string `cli:"name=http-addr desc='websocket listen address'"`
}

func ServeCommand(mainCfg *MainConfig) *cli.Command {
	cfg := &ServeConfig{MainConfig: mainCfg}
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Serve, "serve").
		WithSynopsis("serve [-config <file>] [-data <dir>] [-addr <addr>]").
		WithDescription("run the syncd server").
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return serve(cfg, cc, args)
		})
}

func serve(cfg *ServeConfig, cc *cli.Context, args []string) error {
	_, err := cfg.Serve.Parse(cc, args)
	if err != nil {
		return err
	}

	conf := server.DefaultConfig()
	if cfg.ConfigFile != "" {
		conf, err = server.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return err
		}
	}
	// CLI flags override file values.
	if cfg.DataDir != "" {
		conf.DataDir = cfg.DataDir
	}
	if cfg.Addr != "" {
		conf.Addr = cfg.Addr
	}
	if cfg.HTTPAddr != "" {
		conf.HTTPAddr = cfg.HTTPAddr
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(conf.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Start gops agent for debugging
	if err := agent.Listen(agent.Options{}); err != nil {
		fmt.Fprintf(cc.Out, "gops agent failed: %v\n", err)
	}

	srv := server.New(&server.Spec{Config: conf, Log: conf.NewLogger()})
	if err := srv.StartTCP(conf.Addr); err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "syncd listening on %s\n", srv.TCPAddr())
	if conf.HTTPAddr != "" {
		if err := srv.StartHTTP(conf.HTTPAddr); err != nil {
			srv.Close()
			return err
		}
		fmt.Fprintf(cc.Out, "websocket endpoint on ws://%s/sync\n", srv.HTTPAddr())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Fprintf(cc.Out, "\nShutting down...\n")
	return srv.Close()
}
