package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/threatwatch/sink/server/storage"
	"github.com/julienschmidt/httprouter"
	"gorm.io/gorm"
)

// Server is the downstream alert service. Cameras POST incidents here, and
// people read them back.
type Server struct {
	Log              logs.Log
	DB               *gorm.DB
	Config           *Config
	ShutdownComplete chan error

	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	storage    storage.Storage
	closers    []func() error
}

func NewServer(logger logs.Log, cfg *Config) (*Server, error) {
	db, err := openDB(logger, cfg.DB)
	if err != nil {
		return nil, err
	}

	// Open blob store
	var storageServer storage.Storage
	var closers []func() error
	if cfg.Storage.GCS != nil {
		gcs, err := storage.NewStorageGCS(context.Background(), logger, cfg.Storage.GCS.Bucket, cfg.Storage.GCS.Prefix)
		if err != nil {
			return nil, err
		}
		storageServer = gcs
		closers = append(closers, gcs.Close)
	} else if cfg.Storage.Filesystem != nil {
		storageServer, err = storage.NewStorageFS(logger, cfg.Storage.Filesystem.Root)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')")
	}

	return newServer(logger, cfg, db, storageServer, closers), nil
}

func newServer(logger logs.Log, cfg *Config, db *gorm.DB, store storage.Storage, closers []func() error) *Server {
	s := &Server{
		Log:              logger,
		DB:               db,
		Config:           cfg,
		ShutdownComplete: make(chan error, 1),
		storage:          store,
		closers:          closers,
	}
	s.setupHttpRoutes()
	return s
}

// port example: ":8000"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			s.Shutdown()
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.httpServer.Shutdown(ctx)
		cancel()
	}
	for _, c := range s.closers {
		if e := c(); e != nil {
			s.Log.Warnf("Error closing storage: %v", e)
		}
	}
	if sqlDB, e := s.DB.DB(); e == nil {
		sqlDB.Close()
	}
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.ShutdownComplete <- err
}
