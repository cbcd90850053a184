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

package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gpiboe/GPIBGateway/service/bridge"
	"github.com/gpiboe/GPIBGateway/service/gpib"
)

func newTestService(t *testing.T, conf gpib.Config) (Service, *gpib.Simulator) {
	t.Helper()
	sim := gpib.NewSimulator()
	ctrl, err := gpib.NewController(conf, gpib.Dependencies{
		Log:   zerolog.Nop(),
		Lines: sim,
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	svc, err := NewService(Config{}, Dependencies{
		Log:        zerolog.Nop(),
		Bridge:     bridge.NewStub(),
		Controller: ctrl,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, sim
}

// waitForLine polls the simulator until the given line reaches the
// wanted value.
func waitForLine(t *testing.T, sim *gpib.Simulator, line gpib.Line, want bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for sim.LineValue(line) != want {
		if time.Now().After(deadline) {
			t.Fatalf("line %s never became %v", line, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServiceLifecycle(t *testing.T) {
	svc, sim := newTestService(t, gpib.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	runResult := make(chan error, 1)
	go func() {
		runResult <- svc.Run(ctx)
	}()

	// Startup finishes with remote enable asserted.
	waitForLine(t, sim, gpib.REN, true)

	peer := &gpib.ListenerPeer{}
	sim.SetPeer(peer)
	if err := svc.Write(9, "HELLO\n"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if data := string(peer.DataBytes()); data != "HELLO\n" {
		t.Errorf("expected data %q on the bus, got %q", "HELLO\n", data)
	}

	cancel()
	select {
	case err := <-runResult:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if sim.LineValue(gpib.REN) {
		t.Error("expected REN released after shutdown")
	}
}

func TestServiceRecoversAfterTimeout(t *testing.T) {
	svc, sim := newTestService(t, gpib.Config{
		ReadByteTimeout: 20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runResult := make(chan error, 1)
	go func() {
		runResult <- svc.Run(ctx)
	}()
	waitForLine(t, sim, gpib.REN, true)

	sim.SetPeer(&gpib.StallPeer{})
	if _, err := svc.Read(3); !gpib.IsHandshakeTimeout(err) {
		t.Fatalf("expected HandshakeTimeoutError, got %v", err)
	}

	// The service re-initializes the bus; the next transaction must not
	// be refused.
	peer := &gpib.ListenerPeer{}
	sim.SetPeer(peer)
	if err := svc.Write(5, "DATA\n"); err != nil {
		t.Fatalf("Write after recovery failed: %v", err)
	}

	cancel()
	<-runResult
}
