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
	"os"
	"sync"
	"syscall"
	"unsafe"
)

const (
	// From /usr/include/linux/spi/spidev.h:
	// ioctl signals
	SPI_IOC_WR_MODE          = 0x40016B01
	SPI_IOC_WR_BITS_PER_WORD = 0x40016B03
	SPI_IOC_WR_MAX_SPEED_HZ  = 0x40046B04
	// SPI_IOC_MESSAGE(1)
	SPI_IOC_MESSAGE_1 = 0x40206B00

	// DefaultSpeedHz is the clock used for the MCP23S17 expanders.
	DefaultSpeedHz = 10000000
)

// spiIocTransfer mirrors struct spi_ioc_transfer from the kernel headers.
type spiIocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	pad         uint16
}

// SPIBus provides full duplex transfers on a single SPI chip select.
type SPIBus interface {
	Close() (err error)
	// Transfer clocks out the given bytes and returns the bytes
	// clocked in during the same transfer.
	Transfer(tx []byte) ([]byte, error)
}

type spiBus struct {
	mutex   sync.Mutex
	file    *os.File
	speedHz uint32
}

// NewSPIBus returns an SPIBus with the proper ioctl setup given
// a spidev location (e.g. /dev/spidev1.0).
func NewSPIBus(location string, speedHz uint32) (SPIBus, error) {
	d := &spiBus{speedHz: speedHz}

	var err error
	if d.file, err = os.OpenFile(location, os.O_RDWR, os.ModeExclusive); err != nil {
		return nil, err
	}
	if err := d.setMode(0); err != nil {
		return nil, err
	}
	if err := d.setSpeed(speedHz); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *spiBus) setMode(mode uint8) (err error) {
	_, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL,
		d.file.Fd(),
		SPI_IOC_WR_MODE,
		uintptr(unsafe.Pointer(&mode)),
	)

	if errno != 0 {
		err = fmt.Errorf("Setting SPI mode failed with syscall.Errno %v", errno)
	}
	return
}

func (d *spiBus) setSpeed(speedHz uint32) (err error) {
	_, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL,
		d.file.Fd(),
		SPI_IOC_WR_MAX_SPEED_HZ,
		uintptr(unsafe.Pointer(&speedHz)),
	)

	if errno != 0 {
		err = fmt.Errorf("Setting SPI speed failed with syscall.Errno %v", errno)
	}
	return
}

func (d *spiBus) Close() (err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.file.Close()
}

// Transfer clocks out the given bytes and returns the bytes read back.
func (d *spiBus) Transfer(tx []byte) ([]byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	rx := make([]byte, len(tx))
	xfer := spiIocTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     d.speedHz,
		bitsPerWord: 8,
	}

	_, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL,
		d.file.Fd(),
		SPI_IOC_MESSAGE_1,
		uintptr(unsafe.Pointer(&xfer)),
	)

	if errno != 0 {
		return nil, fmt.Errorf("SPI transfer failed with syscall.Errno %v", errno)
	}

	return rx, nil
}
