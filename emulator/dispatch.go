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

package emulator

import (
	"errors"
	"fmt"

	"github.com/google/go-tpm-emulator/tpm2"
)

// ProcessRequest executes one command buffer and returns the encoded
// response. The response is always at least tpm2.ResponseHeaderSize bytes.
func (t *Instance) ProcessRequest(request []byte) []byte {
	rsp := make([]byte, tpm2.MaxResponseSize)
	n := t.ExecuteCommand(request, rsp)
	return rsp[:n]
}

// ExecuteCommand executes one command buffer, writes the response into
// response and returns the response length.
//
// Protocol failures are reported through the response code of a well-formed
// response. ExecuteCommand panics if response cannot hold a response header,
// since that is a bug in the caller.
func (t *Instance) ExecuteCommand(request, response []byte) int {
	if len(response) < tpm2.ResponseHeaderSize {
		panic(fmt.Sprintf("emulator: response buffer of %d bytes cannot hold a response header", len(response)))
	}

	offset := 0
	hdr, err := tpm2.UnmarshalCommandHeader(request, &offset)
	if err != nil {
		rc := responseCode(err)
		t.logf("bad command header: 0x%x", uint32(rc))
		return writeResponse(response, tpm2.TPMSTNoSessions, 0, rc)
	}

	t.logf("executing TPM command 0x%x", uint32(hdr.CommandCode))
	params, err := commandParameters(&hdr, request)
	if err == nil {
		var size int
		size, err = t.dispatchCommand(&hdr, params, response[tpm2.ResponseHeaderSize:])
		if err == nil {
			return writeResponse(response, hdr.Tag, size, tpm2.TPMRCSuccess)
		}
	}
	rc := responseCode(err)
	t.logf("TPM command 0x%x failed: 0x%x", uint32(hdr.CommandCode), uint32(rc))
	return writeResponse(response, hdr.Tag, 0, rc)
}

// commandParameters returns the parameter area of the command described by
// hdr.
func commandParameters(hdr *tpm2.CommandHeader, request []byte) ([]byte, error) {
	if hdr.Size < tpm2.CommandHeaderSize || uint64(hdr.Size) > uint64(len(request)) {
		return nil, tpm2.TPMRCCommandSize
	}
	return request[tpm2.CommandHeaderSize:hdr.Size], nil
}

// dispatchCommand runs the handler for hdr.CommandCode and returns the number
// of response parameter bytes written to rsp.
func (t *Instance) dispatchCommand(hdr *tpm2.CommandHeader, params, rsp []byte) (int, error) {
	if t.opts.RequireStartup && !t.started && hdr.CommandCode != tpm2.TPMCCStartup {
		return 0, tpm2.TPMRCInitialize
	}

	offset := 0
	switch hdr.CommandCode {
	case tpm2.TPMCCStartup:
		args, err := tpm2.UnmarshalStartupArgs(params, &offset)
		if err != nil {
			return 0, err
		}
		if err := checkConsumed(params, offset); err != nil {
			return 0, err
		}
		if err := t.startup(&args); err != nil {
			return 0, err
		}
		return 0, nil
	case tpm2.TPMCCGetCapability:
		args, err := tpm2.UnmarshalGetCapabilityArgs(params, &offset)
		if err != nil {
			return 0, err
		}
		if err := checkConsumed(params, offset); err != nil {
			return 0, err
		}
		result, err := t.getCapability(&args)
		if err != nil {
			return 0, err
		}
		return tpm2.MarshalGetCapabilityResponse(rsp, &result)
	default:
		return 0, tpm2.TPMRCCommandCode
	}
}

// checkConsumed fails if the handler's arguments did not use the whole
// parameter area.
func checkConsumed(params []byte, offset int) error {
	if offset != len(params) {
		return tpm2.TPMRCSize
	}
	return nil
}

// responseCode maps an error from the command pipeline to the response code
// reported on the wire.
func responseCode(err error) tpm2.TPMRC {
	var rc tpm2.TPMRC
	if !errors.As(err, &rc) || rc == tpm2.TPMRCSuccess {
		return tpm2.TPMRCFailure
	}
	return rc
}

// writeResponse encodes the response header in front of a payload of
// payloadSize bytes that is already in place.
func writeResponse(response []byte, tag tpm2.TPMST, payloadSize int, rc tpm2.TPMRC) int {
	hdr := tpm2.ResponseHeader{
		Tag:          tag,
		Size:         uint32(tpm2.ResponseHeaderSize + payloadSize),
		ResponseCode: rc,
	}
	if _, err := tpm2.MarshalResponseHeader(response[:tpm2.ResponseHeaderSize], &hdr); err != nil {
		panic(fmt.Sprintf("emulator: could not encode response header: %v", err))
	}
	return tpm2.ResponseHeaderSize + payloadSize
}
