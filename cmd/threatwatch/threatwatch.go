package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/server"
	"github.com/cyclopcam/threatwatch/server/config"
)

func main() {
	parser := argparse.NewParser("threatwatch", "Real-time weapon detection for a single camera")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file. If not specified, " + config.DefaultFilename + " is used if it exists", Default: ""})
	envFile := parser.String("", "env", &argparse.Options{Help: "Load environment overrides from this .env file", Default: ""})
	hotReloadWWW := parser.Flag("", "hot", &argparse.Options{Help: "Hot reload www instead of embedding into binary", Default: false})
	listen := parser.String("", "listen", &argparse.Options{Help: "HTTP listen address (overrides the config file)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile, *envFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	flags := 0
	if *hotReloadWWW {
		flags |= server.ServerFlagHotReloadWWW
	}
	srv, err := server.NewServer(logger, cfg, flags)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	// A dead camera or detector is not fatal. The dashboard shows the error status.
	if err := srv.StartMonitor(); err != nil {
		logger.Errorf("Monitoring is not running: %v", err)
	}

	srv.ListenForKillSignals()

	// Tell systemd that we're alive.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	err = srv.ListenHTTP(cfg.Listen)
	logger.Infof("ListenHTTP returned: %v", err)
	if !errors.Is(err, http.ErrServerClosed) {
		// We never started listening, so nobody else is going to shut us down
		srv.Shutdown()
	}

	<-srv.ShutdownComplete
	logger.Close()
}
