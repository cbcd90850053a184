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
	"testing"

	"github.com/rs/zerolog"
)

// fakeSPIBus emulates the register files of the MCP23S17 expanders
// behind the line interface.
type fakeSPIBus struct {
	regs [8][32]byte
}

func (b *fakeSPIBus) Close() error {
	return nil
}

func (b *fakeSPIBus) Transfer(tx []byte) ([]byte, error) {
	rx := make([]byte, len(tx))
	hwAddr := (tx[0] >> 1) & 0x07
	reg := tx[1]
	if tx[0]&1 == 1 {
		rx[2] = b.regs[hwAddr][reg]
	} else {
		for i, value := range tx[2:] {
			b.regs[hwAddr][reg+byte(i)] = value
		}
	}
	return rx, nil
}

func newTestLines(t *testing.T) (LineInterface, *fakeSPIBus) {
	t.Helper()
	bus := &fakeSPIBus{}
	lines, err := NewExpanderLines(zerolog.Nop(), bus)
	if err != nil {
		t.Fatalf("NewExpanderLines failed: %v", err)
	}
	if err := lines.Configure(context.Background()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	return lines, bus
}

func TestExpanderConfigure(t *testing.T) {
	_, bus := newTestLines(t)

	// Data bus released and driven, management lines at idle with IFC
	// released again after the clear pulse.
	if got := bus.regs[dataExpanderAddr][regOLATA]; got != 0xFF {
		t.Errorf("data OLATA = %02X, expected FF", got)
	}
	if got := bus.regs[dataExpanderAddr][regIODIRA]; got != 0x00 {
		t.Errorf("data IODIRA = %02X, expected 00", got)
	}
	if got := bus.regs[dataExpanderAddr][regOLATB]; got != 0b11001111 {
		t.Errorf("data OLATB = %08b, expected 11001111", got)
	}
	if got := bus.regs[dataExpanderAddr][regIODIRB]; got != 0b00110001 {
		t.Errorf("data IODIRB = %08b, expected 00110001", got)
	}
	// Transceivers: system controller with pull-ups, talk disabled.
	if got := bus.regs[ctrlExpanderAddr][regOLATA]; got != (1<<bitSystemCtrl)|(1<<bitPullupEnable) {
		t.Errorf("ctrl OLATA = %08b, expected SC and PE only", got)
	}
	// Status leds off (active low) after the self test flash.
	if got := bus.regs[ctrlExpanderAddr][regOLATB]; got != 0xFF {
		t.Errorf("ctrl OLATB = %02X, expected FF", got)
	}
}

func TestExpanderLinePolarity(t *testing.T) {
	lines, bus := newTestLines(t)

	// Logical asserted is electrically low.
	if err := lines.SetLine(ATN, true); err != nil {
		t.Fatalf("SetLine failed: %v", err)
	}
	if got := bus.regs[dataExpanderAddr][regOLATB] & (1 << lineBits[ATN]); got != 0 {
		t.Error("expected ATN bit low after assert")
	}
	if err := lines.SetLine(ATN, false); err != nil {
		t.Fatalf("SetLine failed: %v", err)
	}
	if got := bus.regs[dataExpanderAddr][regOLATB] & (1 << lineBits[ATN]); got == 0 {
		t.Error("expected ATN bit high after release")
	}

	bus.regs[dataExpanderAddr][regGPIOB] = 0x00
	if value, err := lines.GetLine(DAV); err != nil || !value {
		t.Errorf("expected DAV asserted on low pin, got %v, %v", value, err)
	}
	bus.regs[dataExpanderAddr][regGPIOB] = 1 << lineBits[DAV]
	if value, err := lines.GetLine(DAV); err != nil || value {
		t.Errorf("expected DAV released on high pin, got %v, %v", value, err)
	}
}

func TestExpanderDataPolarity(t *testing.T) {
	lines, bus := newTestLines(t)

	if err := lines.SetData(0x41); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	if got := bus.regs[dataExpanderAddr][regOLATA]; got != 0xBE {
		t.Errorf("expected inverted 0xBE on the port, got %02X", got)
	}

	bus.regs[dataExpanderAddr][regGPIOA] = 0xB5
	if value, err := lines.GetData(); err != nil || value != 0x4A {
		t.Errorf("expected 0x4A, got %02X, %v", value, err)
	}

	if err := lines.SetDataDirection(false); err != nil {
		t.Fatalf("SetDataDirection failed: %v", err)
	}
	if got := bus.regs[dataExpanderAddr][regIODIRA]; got != 0xFF {
		t.Errorf("expected data port as input, IODIRA = %02X", got)
	}
}

func TestExpanderControlBits(t *testing.T) {
	lines, bus := newTestLines(t)

	if err := lines.SetTalkEnable(true); err != nil {
		t.Fatalf("SetTalkEnable failed: %v", err)
	}
	if got := bus.regs[ctrlExpanderAddr][regOLATA] & (1 << bitTalkEnable); got == 0 {
		t.Error("expected TE bit set")
	}
	if err := lines.SetTalkEnable(false); err != nil {
		t.Fatalf("SetTalkEnable failed: %v", err)
	}
	if got := bus.regs[ctrlExpanderAddr][regOLATA] & (1 << bitTalkEnable); got != 0 {
		t.Error("expected TE bit clear")
	}

	// Leds are wired active low.
	if err := lines.SetIndicator(IndicatorError, true); err != nil {
		t.Fatalf("SetIndicator failed: %v", err)
	}
	if got := bus.regs[ctrlExpanderAddr][regOLATB] & (1 << indicatorBits[IndicatorError]); got != 0 {
		t.Error("expected error led bit low")
	}

	if err := lines.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := bus.regs[dataExpanderAddr][regIODIRA]; got != 0xFF {
		t.Errorf("expected data port as input after close, IODIRA = %02X", got)
	}
	if got := bus.regs[ctrlExpanderAddr][regOLATB]; got != 0xFF {
		t.Errorf("expected all leds off after close, OLATB = %02X", got)
	}
}
