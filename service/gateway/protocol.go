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

package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gpiboe/GPIBGateway/model"
	"github.com/gpiboe/GPIBGateway/service/gpib"
)

// Verb identifies a bus operation on the wire.
type Verb byte

const (
	VerbRead    Verb = 'R'
	VerbWrite   Verb = 'W'
	VerbTrigger Verb = 'T'
)

func (v Verb) String() string {
	return string(rune(v))
}

// Wire statuses. Success carries the read payload as detail, failures
// carry a diagnostic message.
const (
	StatusOK             = 0
	StatusError          = -1
	StatusInvalidAddress = -2
	StatusInvalidPayload = -3
	StatusReadFailed     = -4
)

// MaxLineLength bounds a single request line including the terminator.
const MaxLineLength = 4096

var (
	// MalformedRequestError is returned when a request line does not
	// follow the verb|address[|payload] format.
	MalformedRequestError = errors.New("malformed request")
	IsMalformedRequest    = isErrorFunc(MalformedRequestError)
)

// Request is a single parsed gateway command.
type Request struct {
	Verb    Verb
	Address model.BusAddress
	Payload string
}

// ParseRequest parses one request line (without its terminator).
// The address is checked for syntax only; range validation is left to
// the bus so both paths report it the same way.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r")
	parts := strings.SplitN(line, "|", 3)
	if len(parts) < 2 {
		return Request{}, errors.Wrapf(MalformedRequestError, "%q", line)
	}
	if len(parts[0]) != 1 {
		return Request{}, errors.Wrapf(MalformedRequestError, "unknown verb %q", parts[0])
	}
	verb := Verb(parts[0][0])
	switch verb {
	case VerbRead, VerbWrite, VerbTrigger:
	default:
		return Request{}, errors.Wrapf(MalformedRequestError, "unknown verb %q", parts[0])
	}
	address, err := strconv.Atoi(parts[1])
	if err != nil {
		return Request{}, errors.Wrapf(gpib.InvalidAddressError, "%q", parts[1])
	}
	req := Request{
		Verb:    verb,
		Address: model.BusAddress(address),
	}
	if verb == VerbWrite {
		if len(parts) != 3 {
			return Request{}, errors.Wrap(MalformedRequestError, "write without payload")
		}
		req.Payload = parts[2]
	}
	return req, nil
}

// FormatResponse renders a reply line. A successful operation without
// payload is the bare status; anything else is status|detail. The
// detail is stripped of line terminators so the reply is always exactly
// one line.
func FormatResponse(status int, detail string) string {
	detail = strings.TrimRight(detail, "\r\n")
	if detail == "" {
		return fmt.Sprintf("%d\n", status)
	}
	return fmt.Sprintf("%d|%s\n", status, detail)
}

// statusFor maps an operation result to a wire status.
func statusFor(verb Verb, err error) int {
	switch {
	case err == nil:
		return StatusOK
	case gpib.IsInvalidAddress(err):
		return StatusInvalidAddress
	case IsMalformedRequest(err), gpib.IsInvalidPayload(err):
		return StatusInvalidPayload
	case verb == VerbRead:
		return StatusReadFailed
	default:
		return StatusError
	}
}
