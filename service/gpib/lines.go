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

import "context"

// Line identifies one of the IEEE 488.1 management and handshake signals.
type Line byte

const (
	ATN Line = iota // Attention, asserted while command bytes are on the bus
	EOI             // End Or Identify, asserted on the last byte of a message
	IFC             // Interface Clear, controller only
	REN             // Remote Enable, controller only
	SRQ             // Service Request, driven by devices
	DAV             // Data Valid
	NRFD            // Not Ready For Data
	NDAC            // Not Data Accepted

	numLines = 8
)

func (l Line) String() string {
	switch l {
	case ATN:
		return "ATN"
	case EOI:
		return "EOI"
	case IFC:
		return "IFC"
	case REN:
		return "REN"
	case SRQ:
		return "SRQ"
	case DAV:
		return "DAV"
	case NRFD:
		return "NRFD"
	case NDAC:
		return "NDAC"
	}
	return "???"
}

// Indicator identifies one of the status leds on the interface board.
// Indicators are cosmetic; the engine ignores errors when driving them.
type Indicator byte

const (
	IndicatorActivity Indicator = iota
	IndicatorTalk
	IndicatorAttention
	IndicatorError

	numIndicators = 4
)

// LineInterface contains the API that is supported by all backends that
// give access to the bus signals.
//
// All values are logical: true means asserted, regardless of the
// electrical polarity on the wire. Translating between logical and
// electrical levels is the exclusive responsibility of the implementation.
// All calls are synchronous and expected to complete well under the
// handshake timeouts; the engine never retries a failed call.
type LineInterface interface {
	// Configure is called once to put the hardware in the controller
	// idle state (talk disabled, pull-ups enabled, lines released).
	Configure(ctx context.Context) error
	// Close brings the hardware back to a safe state.
	Close() error

	// Get the logical value of the given line.
	GetLine(line Line) (bool, error)
	// Set the logical value of the given line.
	SetLine(line Line, asserted bool) error
	// Set the direction of the given line (true = driven by us).
	SetLineDirection(line Line, output bool) error

	// Get the byte currently on the data bus.
	GetData() (byte, error)
	// Put the given byte on the data bus.
	SetData(value byte) error
	// Set the direction of the data bus (true = driven by us).
	SetDataDirection(output bool) error

	// Switch the bus transceivers between talk and listen.
	SetTalkEnable(enabled bool) error
	// Enable/disable the data bus pull-ups.
	SetPullupEnable(enabled bool) error

	// Turn the given status led on/off.
	SetIndicator(indicator Indicator, on bool) error
}
