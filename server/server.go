// Copyright 2019 The GPIBoE authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	HTTPPort int
}

// Server runs the HTTP server for metrics, health and profiling.
type Server struct {
	Config
	log zerolog.Logger
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger) (*Server, error) {
	return &Server{
		Config: cfg,
		log:    log.With().Str("component", "http").Logger(),
	}, nil
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on address %s: %w", httpAddr, err)
	}

	httpRouter := echo.New()
	httpRouter.HideBanner = true
	httpRouter.GET("/health", echo.WrapHandler(http.HandlerFunc(healthHandler)))
	httpRouter.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	httpSrv := http.Server{
		Handler: httpRouter,
	}

	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	serveResult := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			serveResult <- err
			return
		}
		serveResult <- nil
	}()

	select {
	case err := <-serveResult:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Closing HTTP server")
	httpSrv.Shutdown(context.Background())
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "OK")
}
