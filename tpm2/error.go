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

package tpm2

import "fmt"

// TPMRC represents a TPM_RC response code. Every failure the emulator can
// report on the wire is one of these values, and TPMRC implements error so
// that failures travel through ordinary Go error returns.
type TPMRC uint32

// TPMRC values come from Part 2: Structures, section 6.6.3.
const (
	TPMRCSuccess TPMRC = 0x00000000
	TPMRCBadTag  TPMRC = 0x0000001E

	rcVer1 TPMRC = 0x00000100
	// FMT0 error codes
	TPMRCInitialize  TPMRC = rcVer1 + 0x000
	TPMRCFailure     TPMRC = rcVer1 + 0x001
	TPMRCCommandSize TPMRC = rcVer1 + 0x042
	TPMRCCommandCode TPMRC = rcVer1 + 0x043

	rcFmt1 TPMRC = 0x00000080
	// FMT1 error codes
	TPMRCValue        TPMRC = rcFmt1 + 0x004
	TPMRCSize         TPMRC = rcFmt1 + 0x015
	TPMRCInsufficient TPMRC = rcFmt1 + 0x01A

	rcWarn TPMRC = 0x00000900
	// rcP is set on FMT1 errors that refer to a parameter.
	rcP TPMRC = 0x00000040
)

type errorDesc struct {
	name        string
	description string
}

var rcDescs = map[TPMRC]errorDesc{
	TPMRCSuccess: {
		name:        "TPM_RC_SUCCESS",
		description: "success",
	},
	TPMRCBadTag: {
		name:        "TPM_RC_BAD_TAG",
		description: "defined for compatibility with TPM 1.2",
	},
	TPMRCInitialize: {
		name:        "TPM_RC_INITIALIZE",
		description: "TPM not initialized by TPM2_Startup or already initialized",
	},
	TPMRCFailure: {
		name:        "TPM_RC_FAILURE",
		description: "commands not being accepted because of a TPM failure",
	},
	TPMRCCommandSize: {
		name:        "TPM_RC_COMMAND_SIZE",
		description: "command commandSize value is inconsistent with contents of the command buffer; either the size is not the same as the octets loaded by the hardware interface layer or the value is not large enough to hold a command header",
	},
	TPMRCCommandCode: {
		name:        "TPM_RC_COMMAND_CODE",
		description: "command code not supported",
	},
	TPMRCValue: {
		name:        "TPM_RC_VALUE",
		description: "value is out of range or is not correct for the context",
	},
	TPMRCSize: {
		name:        "TPM_RC_SIZE",
		description: "structure is the wrong size",
	},
	TPMRCInsufficient: {
		name:        "TPM_RC_INSUFFICIENT",
		description: "the TPM was unable to unmarshal a value because there were not enough octets in the input buffer",
	},
}

// isFmt1 reports whether the code uses the format-1 layout.
func (r TPMRC) isFmt1() bool {
	return r&rcFmt1 == rcFmt1
}

// canonical strips the parameter/handle/session number from a format-1
// code.
func (r TPMRC) canonical() TPMRC {
	if !r.isFmt1() {
		return r
	}
	return r & 0x000000BF
}

// IsWarning returns true if the code is a warning. Retrying the command later
// may succeed.
func (r TPMRC) IsWarning() bool {
	return !r.isFmt1() && r&rcWarn == rcWarn
}

// Error produces a human-readable representation of the response code.
func (r TPMRC) Error() string {
	desc, ok := rcDescs[r.canonical()]
	if !ok {
		if r.IsWarning() {
			return fmt.Sprintf("unknown warning (0x%x)", uint32(r))
		}
		return fmt.Sprintf("unrecognized error code (0x%x)", uint32(r))
	}
	if r.isFmt1() && r&rcP == rcP {
		return fmt.Sprintf("%s (parameter %d): %s", desc.name, uint32(r&0xF00)>>8, desc.description)
	}
	return fmt.Sprintf("%s: %s", desc.name, desc.description)
}

// Is returns whether the TPMRC (which may be a FMT1 error carrying a
// parameter number) is equal to the given canonical error.
func (r TPMRC) Is(target error) bool {
	targetRC, ok := target.(TPMRC)
	if !ok {
		return false
	}
	return r.canonical() == targetRC.canonical()
}
