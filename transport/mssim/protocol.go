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

// Package mssim serves an emulated TPM over the TCP protocol of the TPM 2.0
// reference simulator, and provides a matching client.
//
// The protocol uses two ports. The command port carries TPM command buffers
// framed as
//
//	u32 TPM_SEND_COMMAND, u8 locality, u32 size, command
//
// and answers with
//
//	u32 size, response, u32 0
//
// The platform port carries single u32 signals such as power on and reset,
// each answered with a u32 result that is 0 on success. All integers are
// big-endian.
//
// See https://github.com/TrustedComputingGroup/TPM/blob/main/TPMCmd/Simulator/include/TpmTcpProtocol.h
package mssim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// commandCode is a request on the command port.
type commandCode uint32

const (
	tpmHashStart            commandCode = 5
	tpmHashData             commandCode = 6
	tpmHashEnd              commandCode = 7
	tpmSendCommand          commandCode = 8
	tpmRemoteHandshake      commandCode = 15
	tpmSetAlternativeResult commandCode = 16
	tpmSessionEnd           commandCode = 20
	tpmStop                 commandCode = 21
)

func (c commandCode) String() string {
	switch c {
	case tpmHashStart:
		return "HASH_START"
	case tpmHashData:
		return "HASH_DATA"
	case tpmHashEnd:
		return "HASH_END"
	case tpmSendCommand:
		return "SEND_COMMAND"
	case tpmRemoteHandshake:
		return "REMOTE_HANDSHAKE"
	case tpmSetAlternativeResult:
		return "SET_ALTERNATIVE_RESULT"
	case tpmSessionEnd:
		return "SESSION_END"
	case tpmStop:
		return "STOP"
	default:
		return fmt.Sprintf("unknown TPM command (%v)", uint32(c))
	}
}

// platformSignal is a request on the platform port.
type platformSignal uint32

const (
	platformPowerOn     platformSignal = 1
	platformPowerOff    platformSignal = 2
	platformPPOn        platformSignal = 3
	platformPPOff       platformSignal = 4
	platformCancelOn    platformSignal = 9
	platformCancelOff   platformSignal = 10
	platformNVOn        platformSignal = 11
	platformNVOff       platformSignal = 12
	platformKeyCacheOn  platformSignal = 13
	platformKeyCacheOff platformSignal = 14
	platformReset       platformSignal = 17
	platformRestart     platformSignal = 18
	platformSessionEnd  platformSignal = 20
	platformStop        platformSignal = 21
)

func (s platformSignal) String() string {
	switch s {
	case platformPowerOn:
		return "POWER_ON"
	case platformPowerOff:
		return "POWER_OFF"
	case platformPPOn:
		return "PP_ON"
	case platformPPOff:
		return "PP_OFF"
	case platformCancelOn:
		return "CANCEL_ON"
	case platformCancelOff:
		return "CANCEL_OFF"
	case platformNVOn:
		return "NV_ON"
	case platformNVOff:
		return "NV_OFF"
	case platformKeyCacheOn:
		return "KEY_CACHE_ON"
	case platformKeyCacheOff:
		return "KEY_CACHE_OFF"
	case platformReset:
		return "RESET"
	case platformRestart:
		return "RESTART"
	case platformSessionEnd:
		return "SESSION_END"
	case platformStop:
		return "STOP"
	default:
		return fmt.Sprintf("unknown platform command (%v)", uint32(s))
	}
}

const (
	// serverVersion is reported in the REMOTE_HANDSHAKE reply.
	serverVersion = 1

	// Capability flags reported in the REMOTE_HANDSHAKE reply.
	flagPlatformAvailable = 0x01
	flagInRawMode         = 0x04
	flagSupportsPP        = 0x08
)

// sendCommandHeader follows tpmSendCommand on the command port.
type sendCommandHeader struct {
	Locality uint8
	Size     uint32
}

// readSendCommand reads the locality, size and body of a SEND_COMMAND
// request whose command code has already been consumed. Bodies larger than
// limit are rejected without being read.
func readSendCommand(r io.Reader, limit int) (uint8, []byte, error) {
	var hdr sendCommandHeader
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return 0, nil, err
	}
	if uint64(hdr.Size) > uint64(limit) {
		return 0, nil, fmt.Errorf("%w: command (%v bytes) is bigger than max size (%v bytes)", ErrCommandTooBig, hdr.Size, limit)
	}
	cmd := make([]byte, hdr.Size)
	if _, err := io.ReadFull(r, cmd); err != nil {
		return 0, nil, err
	}
	return hdr.Locality, cmd, nil
}

// sendCommandResponse frames rsp as the reply to SEND_COMMAND.
func sendCommandResponse(rsp []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(8 + len(rsp))
	binary.Write(&buf, binary.BigEndian, uint32(len(rsp)))
	buf.Write(rsp)
	binary.Write(&buf, binary.BigEndian, uint32(0))
	return buf.Bytes()
}
