package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/volterm/axpert2mqtt/internal/config"
	"github.com/volterm/axpert2mqtt/internal/monitor"
	"github.com/volterm/axpert2mqtt/pkg/axpert"

	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port    uint
	httpLog bool
	client  *axpert.Client
	monitor *monitor.Monitor
}

func NewServer(cfg config.Config, client *axpert.Client, mon *monitor.Monitor) *http.Server {
	NewServer := &Server{
		port:    cfg.Port,
		httpLog: cfg.HttpLog,
		client:  client,
		monitor: mon,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
