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

//go:build !windows

package uds

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/google/go-tpm-emulator/tpmutil"
	"github.com/google/go-tpm/tpm2/transport"
)

// ErrFileIsNotSocket indicates that the TPM file is not a socket.
var ErrFileIsNotSocket = errors.New("TPM file is not a socket")

// dialer abstracts the net.Dial call so test code can provide its own net.Conn
// implementation.
type dialer func(network, path string) (net.Conn, error)

// TPM talks to a uds Server. The Server keeps connections open for any
// number of commands, but TPM dials a fresh connection for each command and
// hangs up once the response frame has arrived, so a single TPM may be shared
// by callers that serialize their own commands.
type TPM struct {
	path   string
	dialer dialer
}

// Open returns a TPM for the socket at path. Nothing is dialed until the
// first command is sent.
func Open(path string) (transport.TPMCloser, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrFileIsNotSocket, fi.Mode().String(), path)
	}
	return newTPM(path), nil
}

func newTPM(path string) *TPM {
	return &TPM{
		path:   path,
		dialer: net.Dial,
	}
}

// Send sends one command on a new connection and returns the response.
func (t *TPM) Send(cmd []byte) ([]byte, error) {
	conn, err := t.dialer("unix", t.path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return tpmutil.RunCommand(conn, cmd)
}

// Close implements the io.Closer interface. No connection outlives Send, so
// there is nothing to release.
func (t *TPM) Close() error {
	return nil
}
