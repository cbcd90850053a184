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
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// The handshake loops below are deliberate busy-waits: a handshake stage
// completes in the microsecond range and a scheduler sleep between poll
// iterations would dominate the transfer time. The backoff keeps a
// stalled peer from starving other goroutines.

// waitLine polls until the given line reaches the wanted logical value,
// or the deadline elapses.
func (c *Controller) waitLine(line Line, want bool, deadline time.Time) error {
	backoff := 1
	for {
		value, err := c.lines.GetLine(line)
		if err != nil {
			return errors.Wrapf(LineIOError, "get %s: %v", line, err)
		}
		if value == want {
			return nil
		}
		if time.Now().After(deadline) {
			handshakeTimeoutsTotal.Inc()
			return errors.Wrapf(HandshakeTimeoutError, "waiting for %s=%v", line, want)
		}
		for x := 0; x < backoff; x++ {
			runtime.Gosched()
		}
		if backoff < 64 {
			backoff *= 2
		}
	}
}

// WriteByte clocks a single byte out to the addressed listeners using
// the DAV/NRFD/NDAC handshake. The controller must be in the talker
// role. A listener that stops responding trips the write deadline; the
// lines are then left as driven by this attempt and the bus needs Init
// before further use.
func (c *Controller) WriteByte(value byte) error {
	deadline := time.Now().Add(c.WriteByteTimeout)

	// Wait until all listeners are ready to accept a byte.
	if err := c.waitLine(NRFD, false, deadline); err != nil {
		c.noteHandshakeFailure(err)
		return maskAny(err)
	}
	if err := c.setData(value); err != nil {
		return maskAny(err)
	}
	if err := c.setLine(DAV, true); err != nil {
		return maskAny(err)
	}
	// Wait until the slowest listener has accepted the byte.
	if err := c.waitLine(NDAC, false, deadline); err != nil {
		c.noteHandshakeFailure(err)
		return maskAny(err)
	}
	if err := c.setLine(DAV, false); err != nil {
		return maskAny(err)
	}

	bytesWrittenTotal.Inc()
	return nil
}

// ReadByte accepts a single byte from the current talker using the
// DAV/NRFD/NDAC handshake and reports whether EOI was asserted with it.
// The controller must be in the listener role with NRFD and NDAC both
// asserted from the previous cycle. The whole cycle shares one deadline;
// when it elapses the lines are left as driven by this attempt and the
// bus needs Init before further use.
func (c *Controller) ReadByte() (byte, bool, error) {
	// The talker must have withdrawn the previous byte before we signal
	// ready; a still-valid DAV here means the handshake lost synchrony.
	dav, err := c.lines.GetLine(DAV)
	if err != nil {
		return 0, false, errors.Wrapf(LineIOError, "get DAV: %v", err)
	}
	if dav {
		return 0, false, errors.Wrap(ProtocolViolationError, "DAV asserted before read cycle")
	}

	if err := c.setLine(NDAC, true); err != nil {
		return 0, false, maskAny(err)
	}
	if err := c.setLine(NRFD, false); err != nil {
		return 0, false, maskAny(err)
	}

	deadline := time.Now().Add(c.ReadByteTimeout)
	if err := c.waitLine(DAV, true, deadline); err != nil {
		c.noteHandshakeFailure(err)
		return 0, false, maskAny(err)
	}

	// Busy: stop the talker from clocking out more data while we
	// capture this byte.
	if err := c.setLine(NRFD, true); err != nil {
		return 0, false, maskAny(err)
	}
	data, err := c.lines.GetData()
	if err != nil {
		return 0, false, errors.Wrapf(LineIOError, "get data: %v", err)
	}
	eoi, err := c.lines.GetLine(EOI)
	if err != nil {
		return 0, false, errors.Wrapf(LineIOError, "get EOI: %v", err)
	}
	if err := c.setLine(NDAC, false); err != nil {
		return 0, false, maskAny(err)
	}

	// Wait until the talker has withdrawn the byte, then arm the next cycle.
	if err := c.waitLine(DAV, false, deadline); err != nil {
		c.noteHandshakeFailure(err)
		return 0, false, maskAny(err)
	}
	if err := c.setLine(NDAC, true); err != nil {
		return 0, false, maskAny(err)
	}

	bytesReadTotal.Inc()
	return data, eoi, nil
}

// noteHandshakeFailure records that the bus was left in an unknown state
// and must be re-initialized before the next transaction.
func (c *Controller) noteHandshakeFailure(err error) {
	if IsHandshakeTimeout(err) {
		c.needsInit = true
	}
}
