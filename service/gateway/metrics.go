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
	"github.com/gpiboe/GPIBGateway/pkg/metrics"
)

const (
	subSystem = "gateway"
)

var (
	// Number of accepted client connections
	connectionsTotal = metrics.MustRegisterCounter(subSystem,
		"connections_total",
		"Number of accepted client connections")
	// Number of requests per verb
	requestCounters = metrics.MustRegisterCounterVec(subSystem,
		"requests_total",
		"Number of requests",
		"verb")
	// Number of responses per wire status
	responseCounters = metrics.MustRegisterCounterVec(subSystem,
		"responses_total",
		"Number of responses",
		"status")
)
