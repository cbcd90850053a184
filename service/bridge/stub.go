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
	"fmt"
)

// NewStub returns a bridge without any hardware behind it, for running
// the gateway on a development machine.
func NewStub() API {
	return &stubAPI{}
}

type stubSPIBus struct {
}

func (s *stubSPIBus) Close() (err error) {
	return nil
}

func (s *stubSPIBus) Transfer(tx []byte) ([]byte, error) {
	return make([]byte, len(tx)), nil
}

type stubAPI struct {
	stubSPIBus
}

// Turn Green status led on/off
func (s *stubAPI) SetGreenLED(on bool) error {
	if on {
		fmt.Println("Green on")
	} else {
		fmt.Println("Green off")
	}
	return nil
}

// Turn Red status led on/off
func (s *stubAPI) SetRedLED(on bool) error {
	if on {
		fmt.Println("Red on")
	} else {
		fmt.Println("Red off")
	}
	return nil
}

// Open the SPI bus
func (s *stubAPI) SPIBus() (SPIBus, error) {
	return &s.stubSPIBus, nil
}

// Close the bridge
func (s *stubAPI) Close() error {
	return nil
}
