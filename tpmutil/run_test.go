// Copyright (c) 2018, Google Inc. All rights reserved.
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

package tpmutil

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// startupClear is TPM2_Startup(TPM_SU_CLEAR).
var startupClear = []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0C, 0x00, 0x00, 0x01, 0x44, 0x00, 0x00}

func TestFrameSize(t *testing.T) {
	got, err := FrameSize(startupClear)
	if err != nil {
		t.Fatalf("FrameSize() = %v", err)
	}
	if got != 12 {
		t.Errorf("FrameSize() = %d, want 12", got)
	}
	if _, err := FrameSize(startupClear[:9]); !errors.Is(err, ErrShortHeader) {
		t.Errorf("FrameSize(9 bytes) = %v, want %v", err, ErrShortHeader)
	}
}

func TestReadFrame(t *testing.T) {
	tooBig := append([]byte(nil), startupClear...)
	tooBig[5] = 0xFF
	tooSmall := append([]byte(nil), startupClear...)
	tooSmall[5] = 0x09

	tests := []struct {
		name    string
		in      []byte
		bufSize int
		want    []byte
		wantErr error
	}{
		{"exact", startupClear, MaxFrameSize, startupClear, nil},
		{"trailing bytes stay in the stream", append(append([]byte(nil), startupClear...), 0xAA), MaxFrameSize, startupClear, nil},
		{"empty stream", nil, MaxFrameSize, nil, io.EOF},
		{"truncated header", startupClear[:4], MaxFrameSize, nil, io.ErrUnexpectedEOF},
		{"truncated body", startupClear[:11], MaxFrameSize, nil, io.ErrUnexpectedEOF},
		{"larger than buffer", tooBig, MaxFrameSize, nil, ErrFrameSize},
		{"smaller than header", tooSmall, MaxFrameSize, nil, ErrFrameSize},
		{"buffer cannot hold header", startupClear, 4, nil, ErrFrameSize},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, tc.bufSize)
			n, err := ReadFrame(bytes.NewReader(tc.in), buf)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ReadFrame() = %v, want %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(tc.want, buf[:n]); diff != "" {
				t.Errorf("ReadFrame() (-want +got):\n%s", diff)
			}
		})
	}
}

// loopback answers every command with a fixed response.
type loopback struct {
	sent bytes.Buffer
	rsp  *bytes.Reader
}

func (l *loopback) Write(p []byte) (int, error) { return l.sent.Write(p) }
func (l *loopback) Read(p []byte) (int, error)  { return l.rsp.Read(p) }

func TestRunCommand(t *testing.T) {
	rsp := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x01, 0x00}
	rw := &loopback{rsp: bytes.NewReader(rsp)}
	got, err := RunCommand(rw, startupClear)
	if err != nil {
		t.Fatalf("RunCommand() = %v", err)
	}
	if diff := cmp.Diff(rsp, got); diff != "" {
		t.Errorf("RunCommand() response (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(startupClear, rw.sent.Bytes()); diff != "" {
		t.Errorf("RunCommand() sent (-want +got):\n%s", diff)
	}
	if _, err := RunCommand(nil, startupClear); err == nil {
		t.Errorf("RunCommand(nil) succeeded")
	}
}
