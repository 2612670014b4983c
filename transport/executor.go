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

// Package transport connects emulated TPM instances to the servers that
// expose them.
package transport

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/google/go-tpm-emulator/emulator"
	"github.com/google/go-tpm-emulator/internal/logging"
	"github.com/google/go-tpm-emulator/internal/metrics"
	"github.com/google/go-tpm-emulator/tpm2"
	"github.com/google/go-tpm-emulator/tpmutil"
	"github.com/sirupsen/logrus"
)

// ErrPoweredOff indicates that a command was sent to a TPM whose platform
// power is off.
var ErrPoweredOff = errors.New("TPM is powered off")

// Config configures an Executor.
type Config struct {
	// Name labels the executor's logs and metrics, usually after the
	// transport that serves it.
	Name string
	// Emulator configures the TPM instance. A nil Emulator.Log is replaced
	// by a sink writing to Log at debug level.
	Emulator emulator.Options
	// PoweredOn is the initial platform power state.
	PoweredOn bool
	// Log receives the executor's logs. Defaults to the standard logger.
	Log *logrus.Entry
}

// Executor owns one emulated TPM and serializes the commands and platform
// signals sent to it. It is safe for concurrent use.
type Executor struct {
	name string
	log  *logrus.Entry

	mu      sync.Mutex
	tpm     *emulator.Instance
	powered bool
}

// NewExecutor creates an Executor for a fresh TPM instance.
func NewExecutor(cfg Config) *Executor {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("transport", cfg.Name)
	opts := cfg.Emulator
	if opts.Log == nil {
		opts.Log = logging.EmulatorSink(log)
	}
	return &Executor{
		name:    cfg.Name,
		log:     log,
		tpm:     emulator.New(opts),
		powered: cfg.PoweredOn,
	}
}

// Execute runs one command buffer and returns the response buffer. It fails
// only with ErrPoweredOff.
func (e *Executor) Execute(cmd []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.powered {
		metrics.RecordRejected(e.name)
		return nil, ErrPoweredOff
	}
	start := time.Now()
	rsp := e.tpm.ProcessRequest(cmd)
	metrics.RecordCommand(e.name, commandLabel(cmd), responseLabel(rsp), time.Since(start))
	return rsp, nil
}

// Started reports whether TPM2_Startup has run since the last power cycle.
func (e *Executor) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tpm.Started()
}

// Powered reports the platform power state.
func (e *Executor) Powered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.powered
}

// PowerOn turns platform power on. A TPM that was off goes through
// _TPM_Init.
func (e *Executor) PowerOn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	metrics.RecordPlatformSignal(e.name, "POWER_ON")
	if e.powered {
		return
	}
	e.powered = true
	e.tpm.Init()
	e.log.Info("TPM powered on")
}

// PowerOff turns platform power off.
func (e *Executor) PowerOff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	metrics.RecordPlatformSignal(e.name, "POWER_OFF")
	if !e.powered {
		return
	}
	e.powered = false
	e.log.Info("TPM powered off")
}

// Reset signals _TPM_Init to a powered TPM. It does nothing while the TPM is
// off.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	metrics.RecordPlatformSignal(e.name, "RESET")
	if !e.powered {
		return
	}
	e.tpm.Init()
	e.log.Info("TPM reset")
}

// Signal records a platform signal that has no effect on the emulated TPM.
func (e *Executor) Signal(name string) {
	metrics.RecordPlatformSignal(e.name, name)
	e.log.WithField("signal", name).Debug("platform signal ignored")
}

func commandLabel(cmd []byte) string {
	if len(cmd) < tpmutil.HeaderSize {
		return "malformed"
	}
	cc := tpm2.TPMCCFromWire(binary.BigEndian.Uint32(cmd[6:10]))
	if cc == tpm2.TPMCCUnrecognized {
		return "unrecognized"
	}
	return cc.String()
}

func responseLabel(rsp []byte) string {
	return metrics.Hex(binary.BigEndian.Uint32(rsp[6:10]))
}
