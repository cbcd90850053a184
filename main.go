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

package main

import (
	"context"
	"fmt"
	"os"

	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/gpiboe/GPIBGateway/model"
	"github.com/gpiboe/GPIBGateway/server"
	"github.com/gpiboe/GPIBGateway/service"
	"github.com/gpiboe/GPIBGateway/service/bridge"
	"github.com/gpiboe/GPIBGateway/service/gateway"
	"github.com/gpiboe/GPIBGateway/service/gpib"
)

const (
	projectName        = "GPIBoE Gateway"
	defaultGatewayPort = 5025
	defaultHTTPPort    = 5026
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var levelFlag string
	var bridgeType string
	var gatewayHost string
	var gatewayPort int
	var httpPort int

	conf := model.NewDefaultConfig()
	pflag.StringVarP(&levelFlag, "level", "l", "debug", "Set log level")
	pflag.StringVarP(&bridgeType, "bridge", "b", "opz", "Type of bridge to use (rpi|opz|stub)")
	pflag.StringVar(&conf.SPIDevice, "spi-device", conf.SPIDevice, "Path of the spidev device")
	pflag.StringVar(&gatewayHost, "host", "0.0.0.0", "Host address the gateway will listen on")
	pflag.IntVar(&gatewayPort, "port", defaultGatewayPort, "Port the gateway will listen on")
	pflag.IntVar(&httpPort, "http-port", defaultHTTPPort, "Port the HTTP server will listen on")
	pflag.DurationVar(&conf.ReadByteTimeout, "read-timeout", conf.ReadByteTimeout, "Deadline for a single byte of the read handshake")
	pflag.DurationVar(&conf.WriteByteTimeout, "write-timeout", conf.WriteByteTimeout, "Deadline for a single byte of the write handshake")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(levelFlag); err != nil {
		Exitf("Unknown log level '%s'\n", levelFlag)
	} else {
		logger = logger.Level(level)
	}
	if err := conf.Validate(); err != nil {
		Exitf("Invalid configuration: %v\n", err)
	}

	var br bridge.API
	var err error
	switch bridgeType {
	case "rpi":
		br, err = bridge.NewRaspberryPiBridge(conf.SPIDevice)
		if err != nil {
			Exitf("Failed to initialize Raspberry Pi Bridge: %v\n", err)
		}
	case "opz":
		br, err = bridge.NewOrangePIZeroBridge(conf.SPIDevice)
		if err != nil {
			Exitf("Failed to initialize Orange Pi Zero Bridge: %v\n", err)
		}
	case "stub":
		br = bridge.NewStub()
	default:
		Exitf("Unknown bridge type '%s' (rpi|opz|stub)\n", bridgeType)
	}

	spiBus, err := br.SPIBus()
	if err != nil {
		Exitf("Failed to open SPI bus: %v\n", err)
	}
	lines, err := gpib.NewExpanderLines(logger, spiBus)
	if err != nil {
		Exitf("Failed to initialize line interface: %v\n", err)
	}
	controller, err := gpib.NewController(gpib.Config{
		ReadByteTimeout:  conf.ReadByteTimeout,
		WriteByteTimeout: conf.WriteByteTimeout,
	}, gpib.Dependencies{
		Log:   logger,
		Lines: lines,
	})
	if err != nil {
		Exitf("Failed to initialize Controller: %v\n", err)
	}

	svc, err := service.NewService(service.Config{}, service.Dependencies{
		Log:        logger,
		Bridge:     br,
		Controller: controller,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	gatewaySrv, err := gateway.NewServer(gateway.Config{
		Host: gatewayHost,
		Port: gatewayPort,
	}, gateway.Dependencies{
		Log: logger,
		Bus: svc,
	})
	if err != nil {
		Exitf("Failed to initialize Gateway: %v\n", err)
	}

	httpServer, err := server.New(server.Config{
		Host:     gatewayHost,
		HTTPPort: httpPort,
	}, logger)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return gatewaySrv.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %#v", err)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
