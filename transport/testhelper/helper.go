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

// Package testhelper drives an emulator through a transport with the go-tpm
// client, as a real TPM user would.
package testhelper

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
)

// RunTest checks that a freshly initialized emulator behind tpmOpener starts
// up once, refuses a second TPM2_Startup and reports wantManufacturer.
func RunTest(t *testing.T, wantManufacturer uint32, tpmOpener func() (transport.TPMCloser, error)) {
	t.Helper()
	tpm, err := tpmOpener()
	if err != nil {
		t.Fatalf("Failed to open TPM: %v", err)
	}
	defer func(tpm transport.TPMCloser) {
		if err := tpm.Close(); err != nil {
			t.Errorf("tpm.Close() = %v", err)
		}
	}(tpm)

	if _, err := (tpm2.Startup{StartupType: tpm2.TPMSUClear}).Execute(tpm); err != nil {
		t.Fatalf("Startup() = %v", err)
	}
	if _, err := (tpm2.Startup{StartupType: tpm2.TPMSUClear}).Execute(tpm); !errors.Is(err, tpm2.TPMRCInitialize) {
		t.Errorf("second Startup() = %v, want %v", err, tpm2.TPMRCInitialize)
	}

	got := Manufacturer(t, tpm)
	if got != wantManufacturer {
		t.Errorf("manufacturer = 0x%08x, want 0x%08x", got, wantManufacturer)
	}

	_, err = tpm2.GetCapability{
		Capability:    tpm2.TPMCapAlgs,
		Property:      uint32(tpm2.TPMAlgRSA),
		PropertyCount: 1,
	}.Execute(tpm)
	if !errors.Is(err, tpm2.TPMRCValue) {
		t.Errorf("GetCapability(TPM_CAP_ALGS) = %v, want %v", err, tpm2.TPMRCValue)
	}
}

// Manufacturer asks tpm for TPM_PT_MANUFACTURER and returns its value.
func Manufacturer(t *testing.T, tpm transport.TPM) uint32 {
	t.Helper()
	cap, err := tpm2.GetCapability{
		Capability:    tpm2.TPMCapTPMProperties,
		Property:      uint32(tpm2.TPMPTManufacturer),
		PropertyCount: 1,
	}.Execute(tpm)
	if err != nil {
		t.Fatalf("GetCapability() = %v", err)
	}
	if cap.MoreData {
		t.Errorf("GetCapability() reported more data")
	}
	props, err := cap.CapabilityData.Data.TPMProperties()
	if err != nil {
		t.Fatalf("cap.TPMProperties() = %v", err)
	}
	if len(props.TPMProperty) != 1 {
		t.Fatalf("GetCapability() = %v properties, want 1", len(props.TPMProperty))
	}
	if props.TPMProperty[0].Property != tpm2.TPMPTManufacturer {
		t.Errorf("GetCapability() property = %v, want TPM_PT_MANUFACTURER", props.TPMProperty[0].Property)
	}

	var idBuf bytes.Buffer
	idBuf.Grow(4)
	binary.Write(&idBuf, binary.BigEndian, props.TPMProperty[0].Value)
	t.Logf("Manufacturer ID: %q", idBuf.String())
	return props.TPMProperty[0].Value
}
