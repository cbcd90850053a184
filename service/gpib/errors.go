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

import "github.com/pkg/errors"

var (
	// InvalidAddressError is returned when a bus address is outside 1-30.
	InvalidAddressError = errors.New("invalid GPIB address")
	IsInvalidAddress    = isErrorFunc(InvalidAddressError)
	// InvalidPayloadError is returned when there is no data to write.
	InvalidPayloadError = errors.New("invalid or empty data to write")
	IsInvalidPayload    = isErrorFunc(InvalidPayloadError)
	// HandshakeTimeoutError is returned when a single byte handshake
	// exceeded its deadline.
	HandshakeTimeoutError = errors.New("handshake timeout")
	IsHandshakeTimeout    = isErrorFunc(HandshakeTimeoutError)
	// LineIOError is returned when the line interface itself failed.
	LineIOError = errors.New("line interface failed")
	IsLineIO    = isErrorFunc(LineIOError)
	// ProtocolViolationError is returned when a handshake ordering
	// invariant does not hold, or when the bus needs Init after an
	// unrecovered timeout.
	ProtocolViolationError = errors.New("handshake ordering violated")
	IsProtocolViolation    = isErrorFunc(ProtocolViolationError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
