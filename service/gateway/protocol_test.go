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
	"testing"

	"github.com/gpiboe/GPIBGateway/service/gpib"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line     string
		expected Request
	}{
		{"R|7", Request{Verb: VerbRead, Address: 7}},
		{"T|12", Request{Verb: VerbTrigger, Address: 12}},
		{"W|9|HELLO", Request{Verb: VerbWrite, Address: 9, Payload: "HELLO"}},
		{"W|9|", Request{Verb: VerbWrite, Address: 9, Payload: ""}},
		{"W|5|a|b|c", Request{Verb: VerbWrite, Address: 5, Payload: "a|b|c"}},
		{"R|7\r", Request{Verb: VerbRead, Address: 7}},
		// Range is left to the bus; syntax is all the parser checks.
		{"R|99", Request{Verb: VerbRead, Address: 99}},
	}
	for _, test := range tests {
		req, err := ParseRequest(test.line)
		if err != nil {
			t.Errorf("ParseRequest(%q) failed: %v", test.line, err)
			continue
		}
		if req != test.expected {
			t.Errorf("ParseRequest(%q) = %+v, expected %+v", test.line, req, test.expected)
		}
	}
}

func TestParseRequestMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"R",
		"X|7",
		"READ|7",
		"W|9",
		"|7",
	} {
		if _, err := ParseRequest(line); !IsMalformedRequest(err) {
			t.Errorf("ParseRequest(%q) expected MalformedRequestError, got %v", line, err)
		}
	}
}

func TestParseRequestBadAddress(t *testing.T) {
	for _, line := range []string{
		"R|abc",
		"R|",
		"W|1.5|DATA",
	} {
		if _, err := ParseRequest(line); !gpib.IsInvalidAddress(err) {
			t.Errorf("ParseRequest(%q) expected InvalidAddressError, got %v", line, err)
		}
	}
}

func TestFormatResponse(t *testing.T) {
	tests := []struct {
		status   int
		detail   string
		expected string
	}{
		{StatusOK, "", "0\n"},
		{StatusOK, "OK\n", "0|OK\n"},
		{StatusOK, "12.5", "0|12.5\n"},
		{StatusError, "boom", "-1|boom\n"},
		{StatusInvalidAddress, "42: invalid GPIB address", "-2|42: invalid GPIB address\n"},
	}
	for _, test := range tests {
		if resp := FormatResponse(test.status, test.detail); resp != test.expected {
			t.Errorf("FormatResponse(%d, %q) = %q, expected %q", test.status, test.detail, resp, test.expected)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		verb     Verb
		err      error
		expected int
	}{
		{VerbWrite, nil, StatusOK},
		{VerbWrite, gpib.InvalidAddressError, StatusInvalidAddress},
		{VerbWrite, gpib.InvalidPayloadError, StatusInvalidPayload},
		{VerbWrite, gpib.HandshakeTimeoutError, StatusError},
		{VerbRead, gpib.HandshakeTimeoutError, StatusReadFailed},
		{VerbRead, gpib.LineIOError, StatusReadFailed},
		{VerbRead, gpib.InvalidAddressError, StatusInvalidAddress},
		{VerbTrigger, gpib.ProtocolViolationError, StatusError},
		{0, MalformedRequestError, StatusInvalidPayload},
	}
	for _, test := range tests {
		if status := statusFor(test.verb, test.err); status != test.expected {
			t.Errorf("statusFor(%q, %v) = %d, expected %d", test.verb, test.err, status, test.expected)
		}
	}
}
