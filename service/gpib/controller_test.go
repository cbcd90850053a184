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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gpiboe/GPIBGateway/model"
)

func newTestController(t *testing.T, conf Config) (*Controller, *Simulator) {
	t.Helper()
	sim := NewSimulator()
	c, err := NewController(conf, Dependencies{
		Log:   zerolog.Nop(),
		Lines: sim,
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	if err := c.Configure(context.Background()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := c.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return c, sim
}

func TestWriteInvalidAddress(t *testing.T) {
	c, sim := newTestController(t, Config{})
	peer := &ListenerPeer{}
	sim.SetPeer(peer)

	for _, addr := range []model.BusAddress{0, 31, -1, 100} {
		if err := c.Write(addr, "DATA\n"); !IsInvalidAddress(err) {
			t.Errorf("Write(%d) expected InvalidAddressError, got %v", addr, err)
		}
	}
	if len(peer.Bytes) != 0 {
		t.Errorf("expected no bus activity, got %d bytes", len(peer.Bytes))
	}
}

func TestWriteEmptyPayload(t *testing.T) {
	c, sim := newTestController(t, Config{})
	peer := &ListenerPeer{}
	sim.SetPeer(peer)

	if err := c.Write(5, ""); !IsInvalidPayload(err) {
		t.Errorf("expected InvalidPayloadError, got %v", err)
	}
	if len(peer.Bytes) != 0 {
		t.Errorf("expected no bus activity, got %d bytes", len(peer.Bytes))
	}
}

func TestWrite(t *testing.T) {
	c, sim := newTestController(t, Config{})
	peer := &ListenerPeer{}
	sim.SetPeer(peer)

	if err := c.Write(5, "AB"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Address frame under ATN: untalk, unlisten, listen address 5.
	if expected := []byte{0x5F, 0x3F, 0x25}; !bytes.Equal(peer.CommandBytes(), expected) {
		t.Errorf("expected commands %v, got %v", expected, peer.CommandBytes())
	}
	if expected := []byte("AB"); !bytes.Equal(peer.DataBytes(), expected) {
		t.Errorf("expected data %q, got %q", expected, peer.DataBytes())
	}
	// EOI goes with the final data byte only.
	if expected := []bool{false, false, false, false, true}; len(peer.EOI) != len(expected) {
		t.Fatalf("expected %d bytes on the bus, got %d", len(expected), len(peer.EOI))
	} else {
		for i, eoi := range expected {
			if peer.EOI[i] != eoi {
				t.Errorf("byte %d: expected EOI=%v, got %v", i, eoi, peer.EOI[i])
			}
		}
	}
	if role := c.Role(); role != RoleIdle {
		t.Errorf("expected role idle after write, got %s", role)
	}
	if sim.TalkEnabled() {
		t.Error("expected talk disabled after write")
	}
	if !sim.PullupsEnabled() {
		t.Error("expected pull-ups enabled")
	}
}

func TestReadTerminator(t *testing.T) {
	c, sim := newTestController(t, Config{})
	peer := &TalkerPeer{Response: []byte("OK\n")}
	sim.SetPeer(peer)

	data, err := c.Read(7)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if data != "OK\n" {
		t.Errorf("expected %q, got %q", "OK\n", data)
	}
	// Address frame under ATN: untalk, unlisten, talk address 7.
	if expected := []byte{0x5F, 0x3F, 0x47}; !bytes.Equal(peer.Commands.Bytes, expected) {
		t.Errorf("expected commands %v, got %v", expected, peer.Commands.Bytes)
	}
	if role := c.Role(); role != RoleIdle {
		t.Errorf("expected role idle after read, got %s", role)
	}
}

func TestReadEOI(t *testing.T) {
	c, sim := newTestController(t, Config{})
	peer := &TalkerPeer{Response: []byte("12.5"), AssertEOI: true}
	sim.SetPeer(peer)

	data, err := c.Read(7)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if data != "12.5" {
		t.Errorf("expected %q, got %q", "12.5", data)
	}
}

func TestReadTimeout(t *testing.T) {
	c, sim := newTestController(t, Config{ReadByteTimeout: 20 * time.Millisecond})
	sim.SetPeer(&StallPeer{})

	start := time.Now()
	_, err := c.Read(3)
	if !IsHandshakeTimeout(err) {
		t.Fatalf("expected HandshakeTimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("read took %s, deadline was 20ms", elapsed)
	}
}

func TestWriteTimeout(t *testing.T) {
	c, sim := newTestController(t, Config{WriteByteTimeout: 20 * time.Millisecond})
	// A listener that is permanently not ready for data.
	sim.SetPeer(busyPeer{})

	start := time.Now()
	err := c.Write(5, "DATA\n")
	if !IsHandshakeTimeout(err) {
		t.Fatalf("expected HandshakeTimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("write took %s, deadline was 20ms", elapsed)
	}
}

type busyPeer struct{}

func (busyPeer) LinesChanged(bus *Simulator) {
	bus.DeviceSetLine(NRFD, true)
}

func TestInitAfterTimeout(t *testing.T) {
	c, sim := newTestController(t, Config{ReadByteTimeout: 20 * time.Millisecond})
	sim.SetPeer(&StallPeer{})

	if _, err := c.Read(3); !IsHandshakeTimeout(err) {
		t.Fatalf("expected HandshakeTimeoutError, got %v", err)
	}

	// Until Init the bus state is unknown and all transactions are refused.
	if err := c.Write(5, "DATA\n"); !IsProtocolViolation(err) {
		t.Fatalf("expected ProtocolViolationError before init, got %v", err)
	}
	if err := c.Trigger(5); !IsProtocolViolation(err) {
		t.Fatalf("expected ProtocolViolationError before init, got %v", err)
	}

	if err := c.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	peer := &ListenerPeer{}
	sim.SetPeer(peer)
	if err := c.Write(5, "DATA\n"); err != nil {
		t.Fatalf("Write after init failed: %v", err)
	}
	if expected := []byte("DATA\n"); !bytes.Equal(peer.DataBytes(), expected) {
		t.Errorf("expected data %q, got %q", expected, peer.DataBytes())
	}
}

func TestTrigger(t *testing.T) {
	c, sim := newTestController(t, Config{})
	peer := &ListenerPeer{}
	sim.SetPeer(peer)

	if err := c.Trigger(12); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	// Untalk, unlisten, listen address 12, group execute trigger, all
	// under ATN.
	if expected := []byte{0x5F, 0x3F, 0x2C, 0x08}; !bytes.Equal(peer.CommandBytes(), expected) {
		t.Errorf("expected commands %v, got %v", expected, peer.CommandBytes())
	}
	if len(peer.DataBytes()) != 0 {
		t.Errorf("expected no data phase, got %q", peer.DataBytes())
	}
}

func TestReadByteRefusesEarlyDAV(t *testing.T) {
	c, sim := newTestController(t, Config{})

	// A talker that still holds DAV from a previous, desynchronized
	// cycle must not be acknowledged.
	sim.DeviceSetLine(DAV, true)
	if _, _, err := c.ReadByte(); !IsProtocolViolation(err) {
		t.Fatalf("expected ProtocolViolationError, got %v", err)
	}
}

func TestRemoteAndServiceRequest(t *testing.T) {
	c, sim := newTestController(t, Config{})

	if err := c.Remote(true); err != nil {
		t.Fatalf("Remote failed: %v", err)
	}
	if !sim.LineValue(REN) {
		t.Error("expected REN asserted")
	}
	if err := c.Remote(false); err != nil {
		t.Fatalf("Remote failed: %v", err)
	}
	if sim.LineValue(REN) {
		t.Error("expected REN released")
	}

	if srq, err := c.ServiceRequest(); err != nil || srq {
		t.Errorf("expected no service request, got %v, %v", srq, err)
	}
	sim.DeviceSetLine(SRQ, true)
	if srq, err := c.ServiceRequest(); err != nil || !srq {
		t.Errorf("expected service request, got %v, %v", srq, err)
	}
}
