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

package transport

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-tpm-emulator/emulator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var (
	startupClear = []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0C, 0x00, 0x00, 0x01, 0x44, 0x00, 0x00}
	// TPM_CAP_TPM_PROPERTIES, TPM_PT_MANUFACTURER, one property.
	getManufacturer = []byte{
		0x80, 0x01, 0x00, 0x00, 0x00, 0x16, 0x00, 0x00, 0x01, 0x7A,
		0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x01, 0x05, 0x00, 0x00, 0x00, 0x01,
	}
)

func responseHeader(rc uint16) []byte {
	return []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, byte(rc >> 8), byte(rc)}
}

func TestExecutorPowerCycle(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	e := NewExecutor(Config{
		Name:     "test",
		Emulator: emulator.Options{RequireStartup: true},
		Log:      logrus.NewEntry(logger),
	})

	if _, err := e.Execute(startupClear); !errors.Is(err, ErrPoweredOff) {
		t.Fatalf("Execute() while off = %v, want %v", err, ErrPoweredOff)
	}

	e.PowerOn()
	if !e.Powered() {
		t.Fatalf("Powered() = false after PowerOn()")
	}
	rsp, err := e.Execute(getManufacturer)
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if diff := cmp.Diff(responseHeader(0x100), rsp); diff != "" {
		t.Errorf("GetCapability before Startup (-want +got):\n%s", diff)
	}

	rsp, err = e.Execute(startupClear)
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if diff := cmp.Diff(responseHeader(0), rsp); diff != "" {
		t.Errorf("Startup (-want +got):\n%s", diff)
	}
	if !e.Started() {
		t.Errorf("Started() = false after Startup")
	}

	e.Reset()
	if e.Started() {
		t.Errorf("Started() = true after Reset()")
	}

	e.PowerOff()
	e.Reset()
	if e.Powered() {
		t.Errorf("Reset() powered the TPM on")
	}

	var sawDebug bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.DebugLevel && entry.Data["transport"] == "test" {
			sawDebug = true
		}
	}
	if !sawDebug {
		t.Errorf("emulator diagnostics were not logged at debug level")
	}
}

func TestExecutorConcurrent(t *testing.T) {
	e := NewExecutor(Config{Name: "test", PoweredOn: true})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes, initialize int
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rsp, err := e.Execute(startupClear)
			if err != nil {
				t.Errorf("Execute() = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case cmp.Equal(rsp, responseHeader(0)):
				successes++
			case cmp.Equal(rsp, responseHeader(0x100)):
				initialize++
			default:
				t.Errorf("Startup response = %x", rsp)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || initialize != 15 {
		t.Errorf("got %d successful and %d TPM_RC_INITIALIZE Startups, want 1 and 15", successes, initialize)
	}
}

func TestCommandLabel(t *testing.T) {
	unknown := append([]byte(nil), startupClear...)
	unknown[8] = 0x7F
	tests := []struct {
		name string
		cmd  []byte
		want string
	}{
		{"startup", startupClear, "TPM2_Startup"},
		{"get capability", getManufacturer, "TPM2_GetCapability"},
		{"unknown command code", unknown, "unrecognized"},
		{"short", []byte{0x80}, "malformed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := commandLabel(tc.cmd); got != tc.want {
				t.Errorf("commandLabel() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnknownCommandsShareOneSeries(t *testing.T) {
	const series = "tpm_emulator_commands_total"
	logger, _ := test.NewNullLogger()
	e := NewExecutor(Config{Name: "unknown-commands", PoweredOn: true, Log: logrus.NewEntry(logger)})
	before, err := testutil.GatherAndCount(prometheus.DefaultGatherer, series)
	if err != nil {
		t.Fatalf("GatherAndCount() = %v", err)
	}
	cmd := append([]byte(nil), startupClear...)
	for cc := uint32(0x1000); cc < 0x1000+500; cc++ {
		binary.BigEndian.PutUint32(cmd[6:10], cc)
		if _, err := e.Execute(cmd); err != nil {
			t.Fatalf("Execute(0x%x) = %v", cc, err)
		}
	}
	after, err := testutil.GatherAndCount(prometheus.DefaultGatherer, series)
	if err != nil {
		t.Fatalf("GatherAndCount() = %v", err)
	}
	if got := after - before; got != 1 {
		t.Errorf("500 unknown command codes added %d series, want 1", got)
	}
}
