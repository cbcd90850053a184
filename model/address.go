package model

import (
	"github.com/pkg/errors"
)

// BusAddress is the primary address of a device on the GPIB bus.
// Addresses 0 and 31 are reserved (controller and untalk/unlisten)
// and are rejected by Validate.
type BusAddress int

const (
	MinBusAddress BusAddress = 1
	MaxBusAddress BusAddress = 30
)

// Validate the address, returning nil on ok,
// or an error upon validation issues.
func (a BusAddress) Validate() error {
	if a < MinBusAddress || a > MaxBusAddress {
		return errors.Wrapf(ValidationError, "bus address must be between %d and %d, got %d", MinBusAddress, MaxBusAddress, a)
	}
	return nil
}

// ListenAddress returns the command byte that addresses the device as listener.
func (a BusAddress) ListenAddress() byte {
	return byte(a) + 0x20
}

// TalkAddress returns the command byte that addresses the device as talker.
func (a BusAddress) TalkAddress() byte {
	return byte(a) + 0x40
}
