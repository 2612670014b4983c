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
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-tpm-emulator/emulator"
	"github.com/google/go-tpm-emulator/tpmutil"
	"github.com/google/go-tpm-emulator/transport"
	"github.com/google/go-tpm-emulator/transport/testhelper"
	tpmtransport "github.com/google/go-tpm/tpm2/transport"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// startServer serves a fresh TPM on a socket in a temporary directory and
// returns the socket path.
func startServer(t *testing.T, opts emulator.Options) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "uds")
	if err != nil {
		t.Fatalf("MkdirTemp() = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "tpm.sock")

	l, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen() = %v", err)
	}
	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)
	exec := transport.NewExecutor(transport.Config{
		Name:      Name,
		Emulator:  opts,
		PoweredOn: true,
		Log:       log,
	})
	srv := NewServer(exec, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve() = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Serve() did not return after cancellation")
		}
	})
	return path
}

func TestGoTPMClient(t *testing.T) {
	path := startServer(t, emulator.Options{Manufacturer: 0x474F4F47})
	testhelper.RunTest(t, 0x474F4F47, func() (tpmtransport.TPMCloser, error) {
		return Open(path)
	})
}

func TestPersistentConnection(t *testing.T) {
	path := startServer(t, emulator.Options{})
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial() = %v", err)
	}
	defer conn.Close()

	tests := []struct {
		cmd  []byte
		want []byte
	}{
		{
			cmd:  []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0C, 0x00, 0x00, 0x01, 0x44, 0x00, 0x00},
			want: []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x00},
		},
		{
			cmd:  []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0C, 0x00, 0x00, 0x01, 0x44, 0x00, 0x00},
			want: []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x01, 0x00},
		},
		{
			cmd:  []byte{0x80, 0x02, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x01, 0x43},
			want: []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x01, 0x43},
		},
	}
	buf := make([]byte, tpmutil.MaxFrameSize)
	for _, tc := range tests {
		if _, err := conn.Write(tc.cmd); err != nil {
			t.Fatalf("Write() = %v", err)
		}
		n, err := tpmutil.ReadFrame(conn, buf)
		if err != nil {
			t.Fatalf("ReadFrame() = %v", err)
		}
		if diff := cmp.Diff(tc.want, buf[:n]); diff != "" {
			t.Errorf("response to %x (-want +got):\n%s", tc.cmd, diff)
		}
	}
}

func TestOversizedCommand(t *testing.T) {
	path := startServer(t, emulator.Options{})
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial() = %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0x80, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x44}); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	buf := make([]byte, tpmutil.MaxFrameSize)
	n, err := tpmutil.ReadFrame(conn, buf)
	if err != nil {
		t.Fatalf("ReadFrame() = %v", err)
	}
	want := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x01, 0x42}
	if diff := cmp.Diff(want, buf[:n]); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}
	if _, err := tpmutil.ReadFrame(conn, buf); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() after an oversized command = %v, want %v", err, io.EOF)
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s")
	stale, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("ListenUnix() = %v", err)
	}
	stale.SetUnlinkOnClose(false)
	stale.Close()

	l, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen() over a stale socket = %v", err)
	}
	l.Close()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket still exists after Close(): %v", err)
	}
}

func TestNotASocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if _, err := Listen(path); !errors.Is(err, ErrFileIsNotSocket) {
		t.Errorf("Listen(regular file) = %v, want %v", err, ErrFileIsNotSocket)
	}
	if _, err := Open(path); !errors.Is(err, ErrFileIsNotSocket) {
		t.Errorf("Open(regular file) = %v, want %v", err, ErrFileIsNotSocket)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(missing) = %v, want %v", err, os.ErrNotExist)
	}
}

func TestSendDialsPerCommand(t *testing.T) {
	startup := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0C, 0x00, 0x00, 0x01, 0x44, 0x00, 0x00}
	rsp := []byte{0x80, 0x01, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x00}

	tpm := newTPM("unused")
	var dials int
	tpm.dialer = func(network, path string) (net.Conn, error) {
		dials++
		server, client := net.Pipe()
		go func() {
			defer server.Close()
			buf := make([]byte, len(startup))
			if _, err := io.ReadFull(server, buf); err != nil {
				return
			}
			server.Write(rsp)
		}()
		return client, nil
	}

	for i := 0; i < 2; i++ {
		got, err := tpm.Send(startup)
		if err != nil {
			t.Fatalf("Send() = %v", err)
		}
		if diff := cmp.Diff(rsp, got); diff != "" {
			t.Errorf("Send() (-want +got):\n%s", diff)
		}
	}
	if dials != 2 {
		t.Errorf("Send() dialed %d times, want 2", dials)
	}
	if err := tpm.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	dialErr := errors.New("refused")
	tpm.dialer = func(network, path string) (net.Conn, error) { return nil, dialErr }
	if _, err := tpm.Send(startup); !errors.Is(err, dialErr) {
		t.Errorf("Send() with failing dialer = %v, want %v", err, dialErr)
	}
}
