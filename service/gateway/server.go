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
	"bufio"
	"bytes"
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/gpiboe/GPIBGateway/model"
)

// Bus contains the bus operations the gateway exposes on the wire.
type Bus interface {
	// Write sends the given data to the device at the given address.
	Write(address model.BusAddress, data string) error
	// Read accepts a message from the device at the given address.
	Read(address model.BusAddress) (string, error)
	// Trigger sends a group execute trigger to the device at the given
	// address.
	Trigger(address model.BusAddress) error
}

type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on
	Port int
}

type Dependencies struct {
	Log zerolog.Logger
	Bus Bus
}

// Server accepts line oriented requests over TCP and relays them to the
// bus. One request, one reply; connections stay open until the client
// disconnects. A failed bus operation is reported on the wire and never
// closes the connection.
type Server struct {
	Config
	log zerolog.Logger
	bus Bus
}

// NewServer creates a gateway server with the given configuration.
func NewServer(conf Config, deps Dependencies) (*Server, error) {
	return &Server{
		Config: conf,
		log:    deps.Log.With().Str("component", "gateway").Logger(),
		bus:    deps.Bus,
	}, nil
}

// Run accepts connections until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return maskAny(err)
	}
	s.log.Info().Str("address", addr).Msg("gateway listening")
	go func() {
		<-ctx.Done()
		lis.Close()
	}()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return maskAny(err)
		}
		connectionsTotal.Inc()
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection serves one client until it disconnects.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("client connected")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 512), MaxLineLength)
	scanner.Split(scanTerminatedLines)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		response := s.handleLine(log, scanner.Text())
		if _, err := conn.Write([]byte(response)); err != nil {
			log.Debug().Err(err).Msg("failed to write response")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		// Neither an overlong nor an unterminated request can be
		// resynchronized; report it and drop the connection.
		switch err {
		case bufio.ErrTooLong:
			conn.Write([]byte(FormatResponse(StatusInvalidPayload, "request too long")))
			s.countResponse(StatusInvalidPayload)
		case errIncompleteRequest:
			conn.Write([]byte(FormatResponse(StatusInvalidPayload, "incomplete request received")))
			s.countResponse(StatusInvalidPayload)
		}
		log.Debug().Err(err).Msg("client read failed")
		return
	}
	log.Debug().Msg("client disconnected")
}

var errIncompleteRequest = errors.New("incomplete request")

// scanTerminatedLines is like bufio.ScanLines, except that a trailing
// token without its terminator is an error: a connection that drops
// mid-request must not execute a truncated command.
func scanTerminatedLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return 0, nil, errIncompleteRequest
	}
	return 0, nil, nil
}

// handleLine runs a single request against the bus and renders the reply.
func (s *Server) handleLine(log zerolog.Logger, line string) string {
	req, err := ParseRequest(line)
	if err != nil {
		status := statusFor(req.Verb, err)
		s.countResponse(status)
		log.Debug().Err(err).Str("line", line).Msg("rejected request")
		return FormatResponse(status, err.Error())
	}
	requestCounters.WithLabelValues(req.Verb.String()).Inc()

	var detail string
	switch req.Verb {
	case VerbWrite:
		err = s.bus.Write(req.Address, req.Payload)
	case VerbRead:
		detail, err = s.bus.Read(req.Address)
	case VerbTrigger:
		err = s.bus.Trigger(req.Address)
	}
	status := statusFor(req.Verb, err)
	s.countResponse(status)
	if err != nil {
		log.Debug().Err(err).
			Str("verb", req.Verb.String()).
			Int("address", int(req.Address)).
			Msg("request failed")
		return FormatResponse(status, err.Error())
	}
	return FormatResponse(status, detail)
}

func (s *Server) countResponse(status int) {
	responseCounters.WithLabelValues(strconv.Itoa(status)).Inc()
}
