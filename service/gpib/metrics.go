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
	"github.com/gpiboe/GPIBGateway/pkg/metrics"
)

const (
	subSystem = "gpib"
)

var (
	// Number of bus transactions per operation
	transactionCounters = metrics.MustRegisterCounterVec(subSystem,
		"transactions_total",
		"Number of bus transactions",
		"operation")
	// Number of failed bus transactions per operation
	transactionErrorCounters = metrics.MustRegisterCounterVec(subSystem,
		"transaction_errors_total",
		"Number of failed bus transactions",
		"operation")
	// Number of bytes clocked out on the bus
	bytesWrittenTotal = metrics.MustRegisterCounter(subSystem,
		"bytes_written_total",
		"Number of bytes clocked out on the bus")
	// Number of bytes clocked in from the bus
	bytesReadTotal = metrics.MustRegisterCounter(subSystem,
		"bytes_read_total",
		"Number of bytes clocked in from the bus")
	// Number of byte handshakes that hit their deadline
	handshakeTimeoutsTotal = metrics.MustRegisterCounter(subSystem,
		"handshake_timeouts_total",
		"Number of byte handshakes that hit their deadline")
	// Number of interface clear pulses issued
	busInitTotal = metrics.MustRegisterCounter(subSystem,
		"bus_init_total",
		"Number of interface clear pulses issued")
	// State of the SRQ line after the most recent transaction
	srqAssertedGauge = metrics.MustRegisterGauge(subSystem,
		"srq_asserted",
		"State of the SRQ line after the most recent transaction (0=released, 1=asserted)")
)
