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

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gpiboe/GPIBGateway/model"
)

// Role of the controller during a transaction. The controller is the
// only device driving the bus in our setup, so it is at most one of
// talker or listener at any time.
type Role byte

const (
	RoleIdle Role = iota
	RoleTalker
	RoleListener
)

func (r Role) String() string {
	switch r {
	case RoleIdle:
		return "idle"
	case RoleTalker:
		return "talker"
	case RoleListener:
		return "listener"
	}
	return "???"
}

// Universal command bytes (IEEE 488.1).
const (
	cmdUntalk   = 0x5F
	cmdUnlisten = 0x3F
	cmdTrigger  = 0x08 // Group Execute Trigger

	// lineTerminator ends a read when the talker does not assert EOI.
	lineTerminator = '\n'

	// Width of the interface clear pulse. IEEE 488.1 requires at least
	// 100us; we keep a safety margin.
	ifcPulseWidth = 200 * time.Microsecond
)

type Config struct {
	// Deadline for a single byte of the read handshake
	ReadByteTimeout time.Duration
	// Deadline for a single byte of the write handshake
	WriteByteTimeout time.Duration
}

type Dependencies struct {
	Log   zerolog.Logger
	Lines LineInterface
}

// Controller implements the controller-in-charge side of the bus:
// addressing, command framing and the byte transfer operations built on
// the DAV/NRFD/NDAC handshake.
//
// A Controller is not safe for concurrent use. The line interface and
// the bus wiring are one shared, unsynchronized resource; callers must
// serialize all operations against the same physical bus.
type Controller struct {
	Config
	log   zerolog.Logger
	lines LineInterface

	role      Role
	needsInit bool
}

// NewController creates a Controller for the bus behind the given line
// interface.
func NewController(conf Config, deps Dependencies) (*Controller, error) {
	if conf.ReadByteTimeout <= 0 {
		conf.ReadByteTimeout = model.DefaultByteTimeout
	}
	if conf.WriteByteTimeout <= 0 {
		conf.WriteByteTimeout = model.DefaultByteTimeout
	}
	return &Controller{
		Config: conf,
		log:    deps.Log.With().Str("component", "gpib").Logger(),
		lines:  deps.Lines,
		role:   RoleIdle,
	}, nil
}

// Configure initializes the hardware into the controller idle state.
// Must be called once before any bus operation.
func (c *Controller) Configure(ctx context.Context) error {
	if err := c.lines.Configure(ctx); err != nil {
		return maskAny(err)
	}
	c.role = RoleIdle
	c.needsInit = false
	c.log.Debug().Msg("controller configured")
	return nil
}

// Close releases the bus: remote mode off, talk disabled, data bus
// released with pull-ups enabled.
func (c *Controller) Close() error {
	if err := c.setLine(REN, false); err != nil {
		return maskAny(err)
	}
	if err := c.lines.Close(); err != nil {
		return maskAny(err)
	}
	return nil
}

// Init issues an interface clear pulse, resetting all devices on the
// bus to an unaddressed state. Must be called once after Configure and
// again after any unrecovered handshake timeout.
func (c *Controller) Init() error {
	c.indicator(IndicatorActivity, true)
	defer c.indicator(IndicatorActivity, false)

	if err := c.setLine(IFC, true); err != nil {
		return maskAny(err)
	}
	time.Sleep(ifcPulseWidth)
	if err := c.setLine(IFC, false); err != nil {
		return maskAny(err)
	}

	busInitTotal.Inc()
	c.role = RoleIdle
	c.needsInit = false
	c.log.Debug().Msg("interface clear")
	return nil
}

// Remote switches the addressed devices between local front-panel
// control and remote control. Pure line toggle, no handshake.
func (c *Controller) Remote(enable bool) error {
	c.indicator(IndicatorActivity, true)
	defer c.indicator(IndicatorActivity, false)

	if err := c.setLine(REN, enable); err != nil {
		return maskAny(err)
	}
	return nil
}

// ServiceRequest returns the current state of the SRQ line.
func (c *Controller) ServiceRequest() (bool, error) {
	value, err := c.lines.GetLine(SRQ)
	if err != nil {
		return false, errors.Wrapf(LineIOError, "get SRQ: %v", err)
	}
	return value, nil
}

// Write sends the given data to the device at the given address,
// asserting EOI with the final byte.
func (c *Controller) Write(address model.BusAddress, data string) (err error) {
	if err := address.Validate(); err != nil {
		return errors.Wrapf(InvalidAddressError, "%d", address)
	}
	if len(data) == 0 {
		return maskAny(InvalidPayloadError)
	}
	if err := c.checkReady(); err != nil {
		return maskAny(err)
	}
	c.log.Debug().Int("address", int(address)).Int("bytes", len(data)).Msg("write")
	transactionCounters.WithLabelValues("write").Inc()
	defer func() {
		if err != nil {
			transactionErrorCounters.WithLabelValues("write").Inc()
		}
	}()

	c.indicator(IndicatorActivity, true)
	defer c.indicator(IndicatorActivity, false)
	defer c.finishTransaction()

	if err := c.sendCommands(cmdUntalk, cmdUnlisten, address.ListenAddress()); err != nil {
		return maskAny(err)
	}
	for i := 0; i < len(data)-1; i++ {
		if err := c.WriteByte(data[i]); err != nil {
			return maskAny(err)
		}
	}
	if err := c.setLine(EOI, true); err != nil {
		return maskAny(err)
	}
	if err := c.WriteByte(data[len(data)-1]); err != nil {
		return maskAny(err)
	}
	if err := c.setLine(EOI, false); err != nil {
		return maskAny(err)
	}
	return nil
}

// Read addresses the device at the given address as talker and accepts
// bytes until it sends the line terminator or asserts EOI. The
// terminator, when present, is part of the returned payload. A
// handshake timeout aborts the whole read; accumulated bytes are
// dropped because a partial message cannot be trusted.
func (c *Controller) Read(address model.BusAddress) (result string, err error) {
	if err := address.Validate(); err != nil {
		return "", errors.Wrapf(InvalidAddressError, "%d", address)
	}
	if err := c.checkReady(); err != nil {
		return "", maskAny(err)
	}
	c.log.Debug().Int("address", int(address)).Msg("read")
	transactionCounters.WithLabelValues("read").Inc()
	defer func() {
		if err != nil {
			transactionErrorCounters.WithLabelValues("read").Inc()
		}
	}()

	c.indicator(IndicatorActivity, true)
	defer c.indicator(IndicatorActivity, false)
	defer c.finishTransaction()

	// Become listener before releasing ATN, so the addressed talker
	// cannot start sourcing data while the handshake lines are still
	// switching over.
	c.indicator(IndicatorAttention, true)
	defer c.indicator(IndicatorAttention, false)
	if err := c.sendCommandsHolding(cmdUntalk, cmdUnlisten, address.TalkAddress()); err != nil {
		return "", maskAny(err)
	}
	if err := c.setRole(RoleListener); err != nil {
		return "", maskAny(err)
	}
	if err := c.setLine(ATN, false); err != nil {
		return "", maskAny(err)
	}

	var data []byte
	for {
		value, eoi, err := c.ReadByte()
		if err != nil {
			return "", maskAny(err)
		}
		data = append(data, value)
		if value == lineTerminator || eoi {
			break
		}
	}
	c.log.Debug().Int("bytes", len(data)).Msg("read complete")
	return string(data), nil
}

// Trigger sends the Group Execute Trigger command to the device at the
// given address. No data phase follows; success means the command bytes
// were clocked out.
func (c *Controller) Trigger(address model.BusAddress) (err error) {
	if err := address.Validate(); err != nil {
		return errors.Wrapf(InvalidAddressError, "%d", address)
	}
	if err := c.checkReady(); err != nil {
		return maskAny(err)
	}
	c.log.Debug().Int("address", int(address)).Msg("trigger")
	transactionCounters.WithLabelValues("trigger").Inc()
	defer func() {
		if err != nil {
			transactionErrorCounters.WithLabelValues("trigger").Inc()
		}
	}()

	c.indicator(IndicatorActivity, true)
	defer c.indicator(IndicatorActivity, false)
	defer c.finishTransaction()

	if err := c.sendCommands(cmdUntalk, cmdUnlisten, address.ListenAddress(), cmdTrigger); err != nil {
		return maskAny(err)
	}
	return nil
}

// checkReady refuses operations after a handshake timeout until Init
// has resynchronized the bus.
func (c *Controller) checkReady() error {
	if c.needsInit {
		return errors.Wrap(ProtocolViolationError, "bus requires init after handshake timeout")
	}
	return nil
}

// sendCommands becomes talker and clocks the given command bytes out
// under ATN, releasing ATN afterwards.
func (c *Controller) sendCommands(commands ...byte) error {
	c.indicator(IndicatorAttention, true)
	defer c.indicator(IndicatorAttention, false)

	if err := c.sendCommandsHolding(commands...); err != nil {
		return maskAny(err)
	}
	if err := c.setLine(ATN, false); err != nil {
		return maskAny(err)
	}
	return nil
}

// sendCommandsHolding clocks the given command bytes out under ATN and
// leaves ATN asserted; the caller releases it once the handshake lines
// are set up for what follows.
func (c *Controller) sendCommandsHolding(commands ...byte) error {
	if err := c.setRole(RoleTalker); err != nil {
		return maskAny(err)
	}
	if err := c.setLine(ATN, true); err != nil {
		return maskAny(err)
	}
	for _, cmd := range commands {
		if err := c.WriteByte(cmd); err != nil {
			return maskAny(err)
		}
	}
	return nil
}

// setRole reconfigures transceivers and line directions for the given
// role. The idle and listener configurations are identical on the wire;
// only the recorded role differs. No handshake may run while the switch
// is in progress.
func (c *Controller) setRole(role Role) error {
	if role == c.role {
		return nil
	}
	if role == RoleTalker {
		// Data not valid, DAV under our control.
		if err := c.setLine(DAV, false); err != nil {
			return maskAny(err)
		}
		if err := c.setLineDirection(DAV, true); err != nil {
			return maskAny(err)
		}
		if err := c.setLineDirection(NRFD, false); err != nil {
			return maskAny(err)
		}
		if err := c.setLineDirection(NDAC, false); err != nil {
			return maskAny(err)
		}
		if err := c.setTalkEnable(true); err != nil {
			return maskAny(err)
		}
		if err := c.setDataDirection(true); err != nil {
			return maskAny(err)
		}
		c.indicator(IndicatorTalk, true)
	} else {
		if err := c.setLineDirection(DAV, false); err != nil {
			return maskAny(err)
		}
		// Not ready for data, nothing accepted.
		if err := c.setLine(NRFD, true); err != nil {
			return maskAny(err)
		}
		if err := c.setLine(NDAC, true); err != nil {
			return maskAny(err)
		}
		if err := c.setLineDirection(NRFD, true); err != nil {
			return maskAny(err)
		}
		if err := c.setLineDirection(NDAC, true); err != nil {
			return maskAny(err)
		}
		if err := c.setTalkEnable(false); err != nil {
			return maskAny(err)
		}
		if err := c.setDataDirection(false); err != nil {
			return maskAny(err)
		}
		c.indicator(IndicatorTalk, false)
	}
	c.role = role
	return nil
}

// finishTransaction returns the bus to idle, unless a handshake timeout
// left the lines in an unknown state; then only Init restores the bus.
func (c *Controller) finishTransaction() {
	if c.needsInit {
		return
	}
	if err := c.setRole(RoleIdle); err != nil {
		c.log.Warn().Err(err).Msg("failed to return bus to idle")
		return
	}
	if srq, err := c.lines.GetLine(SRQ); err == nil {
		if srq {
			srqAssertedGauge.Set(1)
		} else {
			srqAssertedGauge.Set(0)
		}
	}
}

// Role returns the current role of the controller.
func (c *Controller) Role() Role {
	return c.role
}

// Line interface wrappers; any failure here is fatal to the current
// operation and surfaces as a LineIOError.

func (c *Controller) setLine(line Line, asserted bool) error {
	if err := c.lines.SetLine(line, asserted); err != nil {
		return errors.Wrapf(LineIOError, "set %s: %v", line, err)
	}
	return nil
}

func (c *Controller) setLineDirection(line Line, output bool) error {
	if err := c.lines.SetLineDirection(line, output); err != nil {
		return errors.Wrapf(LineIOError, "set direction %s: %v", line, err)
	}
	return nil
}

func (c *Controller) setData(value byte) error {
	if err := c.lines.SetData(value); err != nil {
		return errors.Wrapf(LineIOError, "set data: %v", err)
	}
	return nil
}

func (c *Controller) setDataDirection(output bool) error {
	if err := c.lines.SetDataDirection(output); err != nil {
		return errors.Wrapf(LineIOError, "set data direction: %v", err)
	}
	return nil
}

func (c *Controller) setTalkEnable(enabled bool) error {
	if err := c.lines.SetTalkEnable(enabled); err != nil {
		return errors.Wrapf(LineIOError, "set talk enable: %v", err)
	}
	return nil
}

// indicator drives a status led. Indicators are cosmetic; errors are
// dropped on purpose.
func (c *Controller) indicator(indicator Indicator, on bool) {
	_ = c.lines.SetIndicator(indicator, on)
}
