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

// Peer models the devices on a simulated bus. LinesChanged is invoked
// synchronously after every controller-side transition; the peer reacts
// by driving its own contribution through the DeviceSet* methods.
type Peer interface {
	LinesChanged(bus *Simulator)
}

// Simulator implements LineInterface fully in memory. Each signal is
// wired-or of the controller contribution (when the controller has the
// line configured as output) and the device contribution, like the
// open collector drivers on the real bus.
//
// The simulator performs no locking of its own; like the hardware it
// stands in for, it expects operations to be serialized by the caller.
type Simulator struct {
	ctl    [numLines]bool // lines driven by the controller
	ctlDir [numLines]bool // true when the controller drives the line
	dev    [numLines]bool // lines driven by the simulated devices

	ctlData byte
	devData byte
	dataOut bool // controller drives the data bus

	talkEnabled    bool
	pullupsEnabled bool
	indicators     [numIndicators]bool

	peer      Peer
	notifying bool
}

// NewSimulator creates a bus simulator without any devices attached.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// SetPeer attaches the simulated devices and gives them a first look at
// the line state.
func (s *Simulator) SetPeer(peer Peer) {
	s.peer = peer
	s.notifyPeer()
}

// Configure puts the simulated hardware in the controller idle state.
func (s *Simulator) Configure(ctx context.Context) error {
	for l := Line(0); l < numLines; l++ {
		s.ctl[l] = false
		s.ctlDir[l] = false
	}
	// REN, IFC, DAV, EOI and ATN start under controller control.
	s.ctlDir[REN] = true
	s.ctlDir[IFC] = true
	s.ctlDir[DAV] = true
	s.ctlDir[EOI] = true
	s.ctlDir[ATN] = true
	s.dataOut = true
	s.ctlData = 0
	s.talkEnabled = false
	s.pullupsEnabled = true
	s.notifyPeer()
	return nil
}

// Close releases the simulated hardware.
func (s *Simulator) Close() error {
	s.talkEnabled = false
	s.dataOut = false
	s.pullupsEnabled = true
	return nil
}

// Get the logical value of the given line.
func (s *Simulator) GetLine(line Line) (bool, error) {
	return s.LineValue(line), nil
}

// Set the logical value of the given line.
func (s *Simulator) SetLine(line Line, asserted bool) error {
	s.ctl[line] = asserted
	s.notifyPeer()
	return nil
}

// Set the direction of the given line.
func (s *Simulator) SetLineDirection(line Line, output bool) error {
	s.ctlDir[line] = output
	s.notifyPeer()
	return nil
}

// Get the byte currently on the data bus.
func (s *Simulator) GetData() (byte, error) {
	return s.DataValue(), nil
}

// Put the given byte on the data bus.
func (s *Simulator) SetData(value byte) error {
	s.ctlData = value
	s.notifyPeer()
	return nil
}

// Set the direction of the data bus.
func (s *Simulator) SetDataDirection(output bool) error {
	s.dataOut = output
	s.notifyPeer()
	return nil
}

// Switch the simulated transceivers between talk and listen.
func (s *Simulator) SetTalkEnable(enabled bool) error {
	s.talkEnabled = enabled
	s.notifyPeer()
	return nil
}

// Enable/disable the simulated data bus pull-ups.
func (s *Simulator) SetPullupEnable(enabled bool) error {
	s.pullupsEnabled = enabled
	return nil
}

// Turn the given status led on/off.
func (s *Simulator) SetIndicator(indicator Indicator, on bool) error {
	s.indicators[indicator] = on
	return nil
}

// TalkEnabled returns the state of the simulated transceivers.
func (s *Simulator) TalkEnabled() bool {
	return s.talkEnabled
}

// PullupsEnabled returns the state of the simulated data bus pull-ups.
func (s *Simulator) PullupsEnabled() bool {
	return s.pullupsEnabled
}

// LineValue returns the wired-or value of the given line as any device
// on the bus would see it.
func (s *Simulator) LineValue(line Line) bool {
	value := s.dev[line]
	if s.ctlDir[line] {
		value = value || s.ctl[line]
	}
	return value
}

// DataValue returns the byte on the data bus as any device would see it.
func (s *Simulator) DataValue() byte {
	if s.dataOut {
		return s.ctlData
	}
	return s.devData
}

// DeviceSetLine drives the device contribution of the given line.
// For use by Peer implementations; does not re-notify the peer.
func (s *Simulator) DeviceSetLine(line Line, asserted bool) {
	s.dev[line] = asserted
}

// DeviceSetData drives the device contribution of the data bus.
// For use by Peer implementations; does not re-notify the peer.
func (s *Simulator) DeviceSetData(value byte) {
	s.devData = value
}

func (s *Simulator) notifyPeer() {
	if s.peer == nil || s.notifying {
		return
	}
	s.notifying = true
	s.peer.LinesChanged(s)
	s.notifying = false
}

// ListenerPeer models a device that accepts every byte the controller
// clocks out, recording data, EOI and ATN per byte.
type ListenerPeer struct {
	Bytes []byte
	EOI   []bool
	ATN   []bool

	latched bool
}

// LinesChanged accepts a byte whenever the controller validates one.
func (p *ListenerPeer) LinesChanged(bus *Simulator) {
	if !p.latched && bus.LineValue(DAV) {
		p.Bytes = append(p.Bytes, bus.DataValue())
		p.EOI = append(p.EOI, bus.LineValue(EOI))
		p.ATN = append(p.ATN, bus.LineValue(ATN))
		p.latched = true
		bus.DeviceSetLine(NRFD, true)
		bus.DeviceSetLine(NDAC, false)
		return
	}
	if p.latched && !bus.LineValue(DAV) {
		p.latched = false
		bus.DeviceSetLine(NDAC, true)
		bus.DeviceSetLine(NRFD, false)
	}
}

// DataBytes returns the accepted bytes that were sent without ATN,
// i.e. the data phase of a transaction.
func (p *ListenerPeer) DataBytes() []byte {
	var result []byte
	for i, b := range p.Bytes {
		if !p.ATN[i] {
			result = append(result, b)
		}
	}
	return result
}

// CommandBytes returns the accepted bytes that were sent under ATN.
func (p *ListenerPeer) CommandBytes() []byte {
	var result []byte
	for i, b := range p.Bytes {
		if p.ATN[i] {
			result = append(result, b)
		}
	}
	return result
}

// TalkerPeer models a device that accepts command bytes under ATN and,
// once the controller listens, emits a scripted response one byte at a
// time, asserting EOI with the final byte when configured.
type TalkerPeer struct {
	Response  []byte
	AssertEOI bool

	// Commands records the bytes accepted under ATN.
	Commands ListenerPeer

	pos     int
	driving bool
}

func (p *TalkerPeer) LinesChanged(bus *Simulator) {
	if bus.LineValue(ATN) {
		p.Commands.LinesChanged(bus)
		return
	}
	// The acceptor contributions from the command phase are released
	// once the device turns talker.
	bus.DeviceSetLine(NRFD, false)
	bus.DeviceSetLine(NDAC, false)
	if p.pos >= len(p.Response) {
		return
	}
	if !p.driving && !bus.LineValue(NRFD) && !bus.LineValue(DAV) && bus.LineValue(NDAC) {
		// Controller is ready for the next byte.
		bus.DeviceSetData(p.Response[p.pos])
		if p.AssertEOI && p.pos == len(p.Response)-1 {
			bus.DeviceSetLine(EOI, true)
		}
		bus.DeviceSetLine(DAV, true)
		p.driving = true
		return
	}
	if p.driving && !bus.LineValue(NDAC) {
		// Byte accepted, withdraw it.
		bus.DeviceSetLine(DAV, false)
		bus.DeviceSetLine(EOI, false)
		p.driving = false
		p.pos++
	}
}

// StallPeer models a device that accepts its address but then never
// starts the data phase, for exercising the read deadline.
type StallPeer struct {
	Commands ListenerPeer
}

func (p *StallPeer) LinesChanged(bus *Simulator) {
	if bus.LineValue(ATN) {
		p.Commands.LinesChanged(bus)
	}
}
