/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("loading config: %s", err)
	}
	if !core.SetLogLevel(cfg.Log.Level) {
		core.LogWarn("unknown log level %q, keeping debug", cfg.Log.Level)
	}

	tb, err := testbed.NewTestGame(cfg)
	if err != nil {
		core.LogFatal("creating testbed: %s", err)
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("creating engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the loop owns the main thread, so a signal only asks it to stop
	go func() {
		<-sigCh
		core.LogInfo("signal received, shutting down")
		e.Quit()
	}()

	code := 0
	if err := e.Initialize(); err != nil {
		core.LogError("initializing engine: %+v", err)
		code = 1
	} else if err := e.Run(); err != nil {
		core.LogError("engine stopped: %+v", err)
		code = 1
	}
	if err := e.Shutdown(); err != nil {
		core.LogError("shutting down: %s", err)
		code = 1
	}
	os.Exit(code)
}
