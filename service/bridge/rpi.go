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

package bridge

import (
	"sync"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

const (
	rpiGreenLedPin = 23
	rpiRedLedPin   = 24
	rpiSPIDevice   = "/dev/spidev0.0"
)

type statusLed struct {
	sync.Mutex
	pin gpio.OutputPin
}

// Turn led on/off
func (l *statusLed) Set(on bool) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	if err := l.pin.Write(on); err != nil {
		return errors.Wrap(err, "Write failed")
	}
	return nil
}

type piBridge struct {
	mutex     sync.Mutex
	greenLed  statusLed
	redLed    statusLed
	spiDevice string
	bus       SPIBus
}

// NewRaspberryPiBridge implements the bridge for Raspberry PI's.
// An empty spiDevice selects the board default.
func NewRaspberryPiBridge(spiDevice string) (API, error) {
	activeLow := true
	initialValue := false
	greenLed, err := gpio.Output(rpiGreenLedPin, activeLow, initialValue)
	if err != nil {
		return nil, errors.Wrap(err, "Output[greenLed] failed")
	}
	redLed, err := gpio.Output(rpiRedLedPin, activeLow, initialValue)
	if err != nil {
		return nil, errors.Wrap(err, "Output[redLed] failed")
	}
	if spiDevice == "" {
		spiDevice = rpiSPIDevice
	}
	return &piBridge{
		greenLed:  statusLed{pin: greenLed},
		redLed:    statusLed{pin: redLed},
		spiDevice: spiDevice,
	}, nil
}

// Turn Green status led on/off
func (p *piBridge) SetGreenLED(on bool) error {
	if err := p.greenLed.Set(on); err != nil {
		return errors.Wrap(err, "Set[greenLed] failed")
	}
	return nil
}

// Turn Red status led on/off
func (p *piBridge) SetRedLED(on bool) error {
	if err := p.redLed.Set(on); err != nil {
		return errors.Wrap(err, "Set[redLed] failed")
	}
	return nil
}

// Open the SPI bus
func (p *piBridge) SPIBus() (SPIBus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bus == nil {
		bus, err := NewSPIBus(p.spiDevice, DefaultSpeedHz)
		if err != nil {
			return nil, errors.Wrap(err, "NewSPIBus failed")
		}
		p.bus = bus
	}
	return p.bus, nil
}

func (p *piBridge) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bus != nil {
		bus := p.bus
		p.bus = nil
		if err := bus.Close(); err != nil {
			return errors.Wrap(err, "Close failed")
		}
	}
	return nil
}
