package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/sink/server"
)

func main() {
	parser := argparse.NewParser("alertsink", "Receives and stores incidents from threatwatch cameras")
	configFilePath := parser.String("c", "config", &argparse.Options{Help: "Config file path. Defaults are used if not specified", Default: ""})
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

	cfg, err := server.LoadConfig(*configFilePath)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	s, err := server.NewServer(logger, cfg)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	s.ListenForKillSignals()
	daemon.SdNotify(false, daemon.SdNotifyReady)
	err = s.ListenHTTP(cfg.Listen)
	logger.Infof("ListenHTTP returned: %v", err)
	if !errors.Is(err, http.ErrServerClosed) {
		s.Shutdown()
	}
	<-s.ShutdownComplete
	logger.Close()
}
