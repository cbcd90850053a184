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

package service

import (
	"context"
	"sync"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/rs/zerolog"

	"github.com/gpiboe/GPIBGateway/model"
	"github.com/gpiboe/GPIBGateway/service/bridge"
	"github.com/gpiboe/GPIBGateway/service/gpib"
)

// Service brings the bus up, serializes all transactions against it and
// brings it down again.
type Service interface {
	// Run initializes the bus and keeps it available until the given
	// context is canceled.
	Run(ctx context.Context) error

	// Write sends the given data to the device at the given address.
	Write(address model.BusAddress, data string) error
	// Read accepts a message from the device at the given address.
	Read(address model.BusAddress) (string, error)
	// Trigger sends a group execute trigger to the device at the given
	// address.
	Trigger(address model.BusAddress) error
}

type Config struct {
}

type Dependencies struct {
	Log        zerolog.Logger
	Bridge     bridge.API
	Controller *gpib.Controller
}

type service struct {
	Config
	log        zerolog.Logger
	bridge     bridge.API
	controller *gpib.Controller

	// mutex serializes all bus transactions; the controller and the
	// wiring behind it are one shared resource.
	mutex sync.Mutex
}

// NewService creates a Service with given config & dependencies.
func NewService(conf Config, deps Dependencies) (Service, error) {
	return &service{
		Config:     conf,
		log:        deps.Log.With().Str("component", "service").Logger(),
		bridge:     deps.Bridge,
		controller: deps.Controller,
	}, nil
}

// Run initializes the bus and keeps it available until the given
// context is canceled.
func (s *service) Run(ctx context.Context) error {
	s.mutex.Lock()
	err := s.startup(ctx)
	s.mutex.Unlock()
	if err != nil {
		s.bridge.SetRedLED(true)
		return maskAny(err)
	}
	s.log.Info().Msg("bus ready")

	<-ctx.Done()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	return maskAny(s.shutdown())
}

// startup configures the hardware, clears the bus and puts the attached
// devices under remote control.
func (s *service) startup(ctx context.Context) error {
	if err := s.controller.Configure(ctx); err != nil {
		return maskAny(err)
	}
	if err := s.controller.Init(); err != nil {
		return maskAny(err)
	}
	if err := s.controller.Remote(true); err != nil {
		return maskAny(err)
	}
	if err := s.bridge.SetGreenLED(true); err != nil {
		s.log.Warn().Err(err).Msg("failed to set green LED")
	}
	return nil
}

// shutdown returns the attached devices to local control and releases
// the bus. All steps are attempted; errors are aggregated.
func (s *service) shutdown() error {
	var ae aerr.AggregateError
	if err := s.controller.Remote(false); err != nil {
		ae.Add(err)
	}
	if err := s.controller.Close(); err != nil {
		ae.Add(err)
	}
	if err := s.bridge.SetGreenLED(false); err != nil {
		ae.Add(err)
	}
	if err := s.bridge.SetRedLED(false); err != nil {
		ae.Add(err)
	}
	s.log.Info().Msg("bus released")
	return ae.AsError()
}

// Write sends the given data to the device at the given address.
func (s *service) Write(address model.BusAddress, data string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	err := s.controller.Write(address, data)
	s.recoverAfter(err)
	if err != nil {
		return maskAny(err)
	}
	return nil
}

// Read accepts a message from the device at the given address.
func (s *service) Read(address model.BusAddress) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	data, err := s.controller.Read(address)
	s.recoverAfter(err)
	if err != nil {
		return "", maskAny(err)
	}
	return data, nil
}

// Trigger sends a group execute trigger to the device at the given
// address.
func (s *service) Trigger(address model.BusAddress) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	err := s.controller.Trigger(address)
	s.recoverAfter(err)
	if err != nil {
		return maskAny(err)
	}
	return nil
}

// recoverAfter re-initializes the bus after a handshake timeout, so the
// next transaction does not have to be refused. The failed transaction
// itself still reports its original error.
func (s *service) recoverAfter(err error) {
	if !gpib.IsHandshakeTimeout(err) {
		return
	}
	s.bridge.SetRedLED(true)
	if ierr := s.controller.Init(); ierr != nil {
		s.log.Error().Err(ierr).Msg("bus recovery failed")
		return
	}
	busRecoveriesTotal.Inc()
	s.bridge.SetRedLED(false)
	s.log.Info().Msg("bus recovered after handshake timeout")
}
