// Copyright (c) 2026, Google LLC All rights reserved.
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

// Package emulator executes TPM 2.0 command buffers against an in-memory
// TPM instance and produces response buffers.
//
// An Instance is not safe for concurrent use. Callers that serve several
// connections must serialize calls into it.
package emulator

import "fmt"

// maxLogMessage bounds the length of a message handed to a LogFunc.
const maxLogMessage = 64

// LogFunc receives short diagnostic messages from the emulator. It is never
// required for correct operation.
type LogFunc func(msg string)

func discardLog(string) {}

// Options configure a new Instance.
type Options struct {
	// Log receives diagnostic messages. Defaults to discarding them.
	Log LogFunc
	// RequireStartup makes every command other than TPM2_Startup fail with
	// TPM_RC_INITIALIZE until the instance has been started.
	RequireStartup bool
	// Manufacturer is reported for TPM_PT_MANUFACTURER.
	Manufacturer uint32
}

// Instance is the state of one emulated TPM.
type Instance struct {
	started bool
	opts    Options
	log     LogFunc
}

// New creates a TPM instance that has been through _TPM_Init but not
// TPM2_Startup.
func New(opts Options) *Instance {
	log := opts.Log
	if log == nil {
		log = discardLog
	}
	return &Instance{
		opts: opts,
		log:  log,
	}
}

// Started returns whether TPM2_Startup has been executed since the last
// _TPM_Init.
func (t *Instance) Started() bool {
	return t.started
}

// Init performs _TPM_Init, as the platform does on power-on or reset. The
// next command the TPM accepts must be TPM2_Startup when RequireStartup is
// set.
func (t *Instance) Init() {
	t.started = false
}

func (t *Instance) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if len(msg) > maxLogMessage {
		msg = msg[:maxLogMessage]
	}
	t.log(msg)
}
