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

package gpib

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gpiboe/GPIBGateway/service/bridge"
)

// expanderLines implements LineInterface on the interface board: two
// MCP23S17 port expanders behind SN7516x transceivers. The data
// expander carries DIO1..8 on port A and the management/handshake lines
// on port B; the control expander carries the transceiver mode pins on
// port A and the status leds on port B.
//
// The transceivers invert every bus signal, so a logical asserted line
// is electrically low. All inversion happens here and nowhere else.
type expanderLines struct {
	log  zerolog.Logger
	bus  bridge.SPIBus
	data *bridge.MCP23S17
	ctrl *bridge.MCP23S17
}

const (
	dataExpanderAddr = 0
	ctrlExpanderAddr = 1

	// Registry addresses with IOCON.BANK=0
	regIODIRA = 0x00
	regIODIRB = 0x01
	regGPIOA  = 0x12
	regGPIOB  = 0x13
	regOLATA  = 0x14
	regOLATB  = 0x15

	// Control expander port A: transceiver mode pins
	bitTalkEnable    = 7 // TE on the SN75160/75161 pair
	bitSystemCtrl    = 6 // SC, always high: we are system controller
	bitPullupEnable  = 5 // PE, data bus pull-up control
	bitDirectionCtrl = 4 // DC, always low in controller configuration

	// Data expander port B idle level and direction after reset:
	// REN=1 IFC=0 NDAC=0 NRFD=0 DAV=1 EOI=1 ATN=1 SRQ=1 (electrical),
	// i.e. everything released except IFC which is held asserted until
	// the 100us clear pulse below has elapsed.
	idleLinesOLATB = 0b10001111
	// REN=out IFC=out NDAC=in NRFD=in DAV=out EOI=out ATN=out SRQ=in
	idleLinesIODIRB = 0b00110001

	// Width of the IFC pulse issued while taking control of the bus.
	// IEEE 488.1 requires at least 100us.
	takeControlIFCPulse = 100 * time.Microsecond

	ledFlashDuration = 10 * time.Millisecond
)

// lineBits maps a Line to its bit on the data expander port B.
var lineBits = [numLines]uint8{
	ATN:  1,
	EOI:  2,
	IFC:  6,
	REN:  7,
	SRQ:  0,
	DAV:  3,
	NRFD: 4,
	NDAC: 5,
}

// indicatorBits maps an Indicator to its bit on the control expander
// port B. The leds are wired active low.
var indicatorBits = [numIndicators]uint8{
	IndicatorActivity:  0,
	IndicatorTalk:      1,
	IndicatorAttention: 2,
	IndicatorError:     3,
}

// NewExpanderLines creates a LineInterface for the MCP23S17 based
// interface board on the given SPI bus.
func NewExpanderLines(log zerolog.Logger, bus bridge.SPIBus) (LineInterface, error) {
	data, err := bridge.NewMCP23S17(bus, dataExpanderAddr)
	if err != nil {
		return nil, maskAny(err)
	}
	ctrl, err := bridge.NewMCP23S17(bus, ctrlExpanderAddr)
	if err != nil {
		return nil, maskAny(err)
	}
	return &expanderLines{
		log:  log.With().Str("component", "lines").Logger(),
		bus:  bus,
		data: data,
		ctrl: ctrl,
	}, nil
}

// Configure puts the expanders and transceivers in the controller idle
// state: data bus released with pull-ups enabled, talk disabled, and an
// interface clear pulse to reset all devices on the bus. It finishes
// with a visible self test flash of all status leds.
func (l *expanderLines) Configure(ctx context.Context) error {
	if err := bridge.EnableHardwareAddressing(l.bus); err != nil {
		return maskAny(err)
	}

	// Data bus released (electrically high), configured as output.
	if err := l.data.WriteReg(regOLATA, 0xFF); err != nil {
		return maskAny(err)
	}
	if err := l.data.WriteReg(regIODIRA, 0x00); err != nil {
		return maskAny(err)
	}

	// Management lines to idle levels, IFC held asserted.
	if err := l.data.WriteReg(regOLATB, idleLinesOLATB); err != nil {
		return maskAny(err)
	}
	if err := l.data.WriteReg(regIODIRB, idleLinesIODIRB); err != nil {
		return maskAny(err)
	}

	// Transceivers: system controller, talk disabled.
	if err := l.ctrl.WriteReg(regOLATA, 1<<bitSystemCtrl); err != nil {
		return maskAny(err)
	}
	if err := l.ctrl.WriteReg(regIODIRA, 0x00); err != nil {
		return maskAny(err)
	}

	// Release IFC after the required pulse width.
	time.Sleep(takeControlIFCPulse)
	if err := l.data.WriteBit(regOLATB, lineBits[IFC], true); err != nil {
		return maskAny(err)
	}

	// Status leds: all outputs, flash all of them once.
	if err := l.ctrl.WriteReg(regIODIRB, 0x00); err != nil {
		return maskAny(err)
	}
	if err := l.ctrl.WriteReg(regOLATB, 0x00); err != nil {
		return maskAny(err)
	}
	time.Sleep(ledFlashDuration)
	if err := l.ctrl.WriteReg(regOLATB, 0xFF); err != nil {
		return maskAny(err)
	}

	if err := l.SetPullupEnable(true); err != nil {
		return maskAny(err)
	}

	l.log.Debug().Msg("finished controller init")
	return nil
}

// Close releases the bus: talk disabled, data bus back to input with
// pull-ups enabled, all leds off.
func (l *expanderLines) Close() error {
	if err := l.SetTalkEnable(false); err != nil {
		return maskAny(err)
	}
	if err := l.SetDataDirection(false); err != nil {
		return maskAny(err)
	}
	if err := l.SetPullupEnable(true); err != nil {
		return maskAny(err)
	}
	if err := l.ctrl.WriteReg(regOLATB, 0xFF); err != nil {
		return maskAny(err)
	}
	return nil
}

// Get the logical value of the given line.
func (l *expanderLines) GetLine(line Line) (bool, error) {
	value, err := l.data.ReadBit(regGPIOB, lineBits[line])
	if err != nil {
		return false, maskAny(err)
	}
	return !value, nil
}

// Set the logical value of the given line.
func (l *expanderLines) SetLine(line Line, asserted bool) error {
	if err := l.data.WriteBit(regOLATB, lineBits[line], !asserted); err != nil {
		return maskAny(err)
	}
	return nil
}

// Set the direction of the given line.
func (l *expanderLines) SetLineDirection(line Line, output bool) error {
	if err := l.data.WriteBit(regIODIRB, lineBits[line], !output); err != nil {
		return maskAny(err)
	}
	return nil
}

// Get the byte currently on the data bus.
func (l *expanderLines) GetData() (byte, error) {
	value, err := l.data.ReadReg(regGPIOA)
	if err != nil {
		return 0, maskAny(err)
	}
	return ^value, nil
}

// Put the given byte on the data bus.
func (l *expanderLines) SetData(value byte) error {
	if err := l.data.WriteReg(regOLATA, ^value); err != nil {
		return maskAny(err)
	}
	return nil
}

// Set the direction of the data bus.
func (l *expanderLines) SetDataDirection(output bool) error {
	iodir := uint8(0xFF)
	if output {
		iodir = 0x00
	}
	if err := l.data.WriteReg(regIODIRA, iodir); err != nil {
		return maskAny(err)
	}
	return nil
}

// Switch the bus transceivers between talk and listen.
func (l *expanderLines) SetTalkEnable(enabled bool) error {
	if err := l.ctrl.WriteBit(regOLATA, bitTalkEnable, enabled); err != nil {
		return maskAny(err)
	}
	return nil
}

// Enable/disable the data bus pull-ups.
func (l *expanderLines) SetPullupEnable(enabled bool) error {
	if err := l.ctrl.WriteBit(regOLATA, bitPullupEnable, enabled); err != nil {
		return maskAny(err)
	}
	return nil
}

// Turn the given status led on/off.
func (l *expanderLines) SetIndicator(indicator Indicator, on bool) error {
	if err := l.ctrl.WriteBit(regOLATB, indicatorBits[indicator], !on); err != nil {
		return maskAny(err)
	}
	return nil
}
