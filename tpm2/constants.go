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

// Package tpm2 contains the TPM 2.0 wire vocabulary used by the emulator:
// structure tags, command and response codes, the structures of the
// supported commands, and their big-endian encoding.
package tpm2

import "fmt"

// Sizes of the fixed parts of the wire format.
const (
	// CommandHeaderSize is the size of tag + commandSize + commandCode.
	CommandHeaderSize = 2 + 4 + 4
	// ResponseHeaderSize is the size of tag + responseSize + responseCode.
	ResponseHeaderSize = 2 + 4 + 4
	// MaxCommandSize is the largest command the emulator accepts.
	MaxCommandSize = 4096
	// MaxResponseSize is the largest response the emulator produces.
	MaxResponseSize = 4096
	// MaxTPMProperties is the capacity of a TPML_TAGGED_TPM_PROPERTY list.
	MaxTPMProperties = 8
)

// TPMST represents a TPM_ST structure tag. Only the command tags are
// modeled.
type TPMST uint16

// TPMST values come from Part 2: Structures, section 6.9.
const (
	TPMSTNoSessions TPMST = 0x8001
	TPMSTSessions   TPMST = 0x8002
	// TPMSTUnrecognized is the result of decoding any other value.
	TPMSTUnrecognized TPMST = 0xFFFF
)

// TPMSTFromWire maps a raw tag to its variant.
func TPMSTFromWire(v uint16) TPMST {
	switch TPMST(v) {
	case TPMSTNoSessions, TPMSTSessions:
		return TPMST(v)
	}
	return TPMSTUnrecognized
}

func (t TPMST) String() string {
	switch t {
	case TPMSTNoSessions:
		return "TPM_ST_NO_SESSIONS"
	case TPMSTSessions:
		return "TPM_ST_SESSIONS"
	}
	return fmt.Sprintf("unrecognized TPM_ST (0x%04x)", uint16(t))
}

// TPMCC represents a TPM_CC command code.
type TPMCC uint32

// TPMCC values come from Part 2: Structures, section 6.5.2.
const (
	TPMCCStartup       TPMCC = 0x00000144
	TPMCCGetCapability TPMCC = 0x0000017A
	// TPMCCUnrecognized is the result of decoding an unsupported command
	// code.
	TPMCCUnrecognized TPMCC = 0xFFFFFFFF
)

// TPMCCFromWire maps a raw command code to its variant.
func TPMCCFromWire(v uint32) TPMCC {
	switch TPMCC(v) {
	case TPMCCStartup, TPMCCGetCapability:
		return TPMCC(v)
	}
	return TPMCCUnrecognized
}

func (c TPMCC) String() string {
	switch c {
	case TPMCCStartup:
		return "TPM2_Startup"
	case TPMCCGetCapability:
		return "TPM2_GetCapability"
	}
	return fmt.Sprintf("unrecognized TPM_CC (0x%08x)", uint32(c))
}

// TPMSU represents a TPM_SU startup type.
type TPMSU uint16

// TPMSU values come from Part 2: Structures, section 6.10.
const (
	TPMSUClear TPMSU = 0x0000
	TPMSUState TPMSU = 0x0001
	// TPMSUUnrecognized is the result of decoding any other value.
	TPMSUUnrecognized TPMSU = 0xFFFF
)

// TPMSUFromWire maps a raw startup type to its variant.
func TPMSUFromWire(v uint16) TPMSU {
	switch TPMSU(v) {
	case TPMSUClear, TPMSUState:
		return TPMSU(v)
	}
	return TPMSUUnrecognized
}

func (s TPMSU) String() string {
	switch s {
	case TPMSUClear:
		return "TPM_SU_CLEAR"
	case TPMSUState:
		return "TPM_SU_STATE"
	}
	return fmt.Sprintf("unrecognized TPM_SU (0x%04x)", uint16(s))
}

// TPMCap represents a TPM_CAP capability group.
type TPMCap uint32

// TPMCap values come from Part 2: Structures, section 6.12.
const (
	TPMCapTPMProperties TPMCap = 0x00000006
	// TPMCapUnrecognized is the result of decoding an unsupported
	// capability.
	TPMCapUnrecognized TPMCap = 0xFFFFFFFF
)

// TPMCapFromWire maps a raw capability to its variant.
func TPMCapFromWire(v uint32) TPMCap {
	if TPMCap(v) == TPMCapTPMProperties {
		return TPMCapTPMProperties
	}
	return TPMCapUnrecognized
}

func (c TPMCap) String() string {
	if c == TPMCapTPMProperties {
		return "TPM_CAP_TPM_PROPERTIES"
	}
	return fmt.Sprintf("unrecognized TPM_CAP (0x%08x)", uint32(c))
}

// TPMPT represents a TPM_PT property tag.
type TPMPT uint32

// TPMPT values come from Part 2: Structures, section 6.13.
const (
	TPMPTManufacturer TPMPT = 0x00000105
	// TPMPTUnrecognized is the result of decoding an unsupported property.
	TPMPTUnrecognized TPMPT = 0xFFFFFFFF
)

// TPMPTFromWire maps a raw property tag to its variant.
func TPMPTFromWire(v uint32) TPMPT {
	if TPMPT(v) == TPMPTManufacturer {
		return TPMPTManufacturer
	}
	return TPMPTUnrecognized
}

func (p TPMPT) String() string {
	if p == TPMPTManufacturer {
		return "TPM_PT_MANUFACTURER"
	}
	return fmt.Sprintf("unrecognized TPM_PT (0x%08x)", uint32(p))
}
