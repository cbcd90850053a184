package bridge

import (
	"fmt"

	"github.com/pkg/errors"
)

// MCP23S17 provides register access to a single MCP23S17 port expander
// on a shared SPI bus. Multiple expanders share the chip select through
// the hardware address pins; EnableHardwareAddressing must be called
// once per bus before addressed access works.
type MCP23S17 struct {
	bus    SPIBus
	hwAddr byte
}

const (
	// Base SPI opcode of the MCP23S17 (0 1 0 0 A2 A1 A0 R/W).
	mcp23s17OpcodeWrite = 0x40
	mcp23s17OpcodeRead  = 0x41

	// IOCON register (BANK=0) and its HAEN bit.
	mcp23s17RegIOCON  = 0x0A
	mcp23s17IoconHAEN = 0x08
)

// NewMCP23S17 creates register access for the expander with the given
// hardware address (0..7) on the given bus.
func NewMCP23S17(bus SPIBus, hwAddr byte) (*MCP23S17, error) {
	if hwAddr > 7 {
		return nil, errors.Errorf("invalid hardware address %d (must be 0-7)", hwAddr)
	}
	return &MCP23S17{
		bus:    bus,
		hwAddr: hwAddr,
	}, nil
}

// EnableHardwareAddressing sets the HAEN bit in IOCON on all expanders
// sharing the chip select. While HAEN is clear every chip responds to
// every opcode, so a single broadcast write reaches them all.
func EnableHardwareAddressing(bus SPIBus) error {
	// IOCON is mapped at 0x0A and 0x0B with BANK=0; writing both keeps
	// the sequential-address pointer in a known state.
	if _, err := bus.Transfer([]byte{mcp23s17OpcodeWrite, mcp23s17RegIOCON, mcp23s17IoconHAEN, mcp23s17IoconHAEN}); err != nil {
		return maskAny(err)
	}
	return nil
}

// ReadReg reads a single register.
func (d *MCP23S17) ReadReg(reg uint8) (uint8, error) {
	spiTransferCounters.WithLabelValues(d.label()).Inc()
	buf, err := d.bus.Transfer([]byte{mcp23s17OpcodeRead | (d.hwAddr << 1), reg, 0x00})
	if err != nil {
		spiTransferErrorCounters.WithLabelValues(d.label()).Inc()
		return 0, errors.Wrap(err, "Transfer failed")
	}
	return buf[2], nil
}

// WriteReg writes a single register.
func (d *MCP23S17) WriteReg(reg uint8, value uint8) error {
	spiTransferCounters.WithLabelValues(d.label()).Inc()
	if _, err := d.bus.Transfer([]byte{mcp23s17OpcodeWrite | (d.hwAddr << 1), reg, value}); err != nil {
		spiTransferErrorCounters.WithLabelValues(d.label()).Inc()
		return errors.Wrap(err, "Transfer failed")
	}
	return nil
}

// WriteBit sets or clears a single bit of a register with a
// read-modify-write cycle.
func (d *MCP23S17) WriteBit(reg uint8, bit uint8, value bool) error {
	if bit > 7 {
		return errors.Errorf("invalid bit %d", bit)
	}
	buf, err := d.ReadReg(reg)
	if err != nil {
		return maskAny(err)
	}
	if value {
		buf |= 1 << bit
	} else {
		buf &= ^(1 << bit)
	}
	if err := d.WriteReg(reg, buf); err != nil {
		return maskAny(err)
	}
	return nil
}

// ReadBit reads a single bit of a register.
func (d *MCP23S17) ReadBit(reg uint8, bit uint8) (bool, error) {
	if bit > 7 {
		return false, errors.Errorf("invalid bit %d", bit)
	}
	buf, err := d.ReadReg(reg)
	if err != nil {
		return false, maskAny(err)
	}
	return (buf>>bit)&1 != 0, nil
}

func (d *MCP23S17) label() string {
	return fmt.Sprintf("%d", d.hwAddr)
}
