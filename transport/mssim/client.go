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

package mssim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	ErrPlatformFailed = errors.New("platform command failed")
	ErrTPMFailed      = errors.New("TPM command failed")
	ErrResponseTooBig = errors.New("response too big")
	ErrCommandTooBig  = errors.New("command too big")
	ErrTransport      = errors.New("TCP transport error")
	ErrEmptyResponse  = errors.New("TPM returned empty response (does it need to be powered on?)")
)

const maxBufferSize = 1048576

// TPM is a connection to both ports of a simulator-protocol TPM.
type TPM struct {
	cmd  net.Conn
	plat net.Conn
}

// Send implements the go-tpm transport.TPMCloser interface.
func (t *TPM) Send(cmd []byte) ([]byte, error) {
	req := struct {
		Code     commandCode
		Locality uint8
		Size     uint32
	}{tpmSendCommand, 0, uint32(len(cmd))}
	if err := binary.Write(t.cmd, binary.BigEndian, req); err != nil {
		return nil, fmt.Errorf("%w: could not send TPM command to service: %v", ErrTransport, err)
	}
	if _, err := t.cmd.Write(cmd); err != nil {
		return nil, fmt.Errorf("%w: could not send TPM command to service: %v", ErrTransport, err)
	}

	var rspLen uint32
	if err := binary.Read(t.cmd, binary.BigEndian, &rspLen); err != nil {
		return nil, fmt.Errorf("%w: could not read TPM response from service: %v", ErrTransport, err)
	}
	if rspLen > maxBufferSize {
		return nil, fmt.Errorf("%w: response (%v bytes) was bigger than max size (%v bytes)", ErrResponseTooBig, rspLen, maxBufferSize)
	}
	rsp := make([]byte, int(rspLen))
	if _, err := io.ReadFull(t.cmd, rsp); err != nil {
		return nil, fmt.Errorf("%w: could not read full TPM response: %v", ErrTransport, err)
	}
	// The server also provides a TCP error code at the end.
	var rspCode uint32
	if err := binary.Read(t.cmd, binary.BigEndian, &rspCode); err != nil {
		return nil, fmt.Errorf("%w: could not read %v result: %v", ErrTransport, tpmSendCommand, err)
	}
	if rspCode != 0 {
		return nil, fmt.Errorf("%w: %v returned %v", ErrTPMFailed, tpmSendCommand, rspCode)
	}
	if rspLen == 0 {
		return nil, ErrEmptyResponse
	}
	return rsp, nil
}

// Close implements the go-tpm transport.TPMCloser interface. It ends both
// sessions so the server can tell a clean disconnect from a dropped one.
func (t *TPM) Close() error {
	return errors.Join(
		binary.Write(t.cmd, binary.BigEndian, tpmSessionEnd),
		binary.Write(t.plat, binary.BigEndian, platformSessionEnd),
		t.cmd.Close(),
		t.plat.Close(),
	)
}

// PowerOn powers on the TPM.
// Note: This is distinct from sending the TPM2_Startup command.
func (t *TPM) PowerOn() error {
	return errors.Join(t.sendPlatformSignal(platformPowerOn),
		t.sendPlatformSignal(platformNVOn))
}

// PowerOff powers off the TPM.
func (t *TPM) PowerOff() error {
	return errors.Join(t.sendPlatformSignal(platformPowerOff),
		t.sendPlatformSignal(platformNVOff))
}

// Reset power-cycles the TPM if it is already on. If it is not already on,
// nothing happens.
func (t *TPM) Reset() error {
	return t.sendPlatformSignal(platformReset)
}

// Handshake exchanges protocol versions on the command port and returns the
// server's version and capability flags.
func (t *TPM) Handshake() (version, flags uint32, err error) {
	req := []uint32{uint32(tpmRemoteHandshake), 1}
	if err := binary.Write(t.cmd, binary.BigEndian, req); err != nil {
		return 0, 0, fmt.Errorf("%w: could not send %v: %v", ErrTransport, tpmRemoteHandshake, err)
	}
	var rsp [3]uint32
	if err := binary.Read(t.cmd, binary.BigEndian, &rsp); err != nil {
		return 0, 0, fmt.Errorf("%w: could not read %v reply: %v", ErrTransport, tpmRemoteHandshake, err)
	}
	if rsp[2] != 0 {
		return 0, 0, fmt.Errorf("%w: %v returned %v", ErrTPMFailed, tpmRemoteHandshake, rsp[2])
	}
	return rsp[0], rsp[1], nil
}

// Config provides the connection information for a running TCP TPM.
type Config struct {
	// CommandAddress is the full host:port address of the Command server, e.g.,
	// "localhost:2321"
	CommandAddress string
	// PlatformAddress is the full host:port address of the Platform server,
	// e.g., "localhost:2322"
	PlatformAddress string
}

// Open opens a connection to the TPM. It may still need to be powered on using PowerOn().
func Open(config Config) (*TPM, error) {
	cmd, err := net.Dial("tcp", config.CommandAddress)
	if err != nil {
		return nil, fmt.Errorf("could not connect to command service at %q: %w", config.CommandAddress, err)
	}
	plat, err := net.Dial("tcp", config.PlatformAddress)
	if err != nil {
		cmd.Close()
		return nil, fmt.Errorf("could not connect to platform service at %q: %w", config.PlatformAddress, err)
	}

	return &TPM{
		cmd:  cmd,
		plat: plat,
	}, nil
}

// sendPlatformSignal sends a signal to the platform service and checks its
// result code.
func (t *TPM) sendPlatformSignal(signal platformSignal) error {
	if err := binary.Write(t.plat, binary.BigEndian, signal); err != nil {
		return fmt.Errorf("could not write %v to platform service: %w", signal, err)
	}
	var result uint32
	if err := binary.Read(t.plat, binary.BigEndian, &result); err != nil {
		return fmt.Errorf("could not read %v result from platform service: %w", signal, err)
	}
	if result != 0 {
		return fmt.Errorf("%w: %v returned %v", ErrPlatformFailed, signal, result)
	}
	return nil
}
