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

// Package uds serves an emulated TPM over a Unix domain socket and provides
// a matching client.
//
// Each connection carries raw TPM command buffers. The server answers every
// command with its response buffer and keeps the connection open until the
// client closes it, so both one-command-per-connection clients and
// persistent clients work.
package uds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/google/go-tpm-emulator/internal/metrics"
	"github.com/google/go-tpm-emulator/tpm2"
	"github.com/google/go-tpm-emulator/tpmutil"
	"github.com/google/go-tpm-emulator/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Name labels the transport in logs and metrics.
const Name = "uds"

// Listen removes a stale socket left at path by an earlier server and
// listens on path.
func Listen(path string) (*net.UnixListener, error) {
	fi, err := os.Lstat(path)
	switch {
	case err == nil:
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("%w: %s (%s)", ErrFileIsNotSocket, fi.Mode().String(), path)
		}
		if err := unix.Unlink(path); err != nil {
			return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	l.SetUnlinkOnClose(true)
	return l, nil
}

// Server answers TPM commands on Unix socket connections.
type Server struct {
	exec *transport.Executor
	log  *logrus.Entry
}

// NewServer creates a server that executes commands on exec.
func NewServer(exec *transport.Executor, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		exec: exec,
		log:  log.WithField("transport", Name),
	}
}

// Serve accepts connections on l until ctx is done, then closes l and waits
// for open connections to finish. It returns nil after a cancellation.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	s.log.WithField("addr", l.Addr().String()).Info("listening")
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		metrics.RecordConnection(Name, "command")
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle answers commands on conn until the client closes it.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, tpm2.MaxCommandSize)
	for {
		n, err := tpmutil.ReadFrame(conn, buf)
		last := false
		switch {
		case errors.Is(err, tpmutil.ErrFrameSize):
			// Let the TPM reject the header with TPM_RC_COMMAND_SIZE. The
			// stream cannot be resynchronized afterwards.
			n, last = tpmutil.HeaderSize, true
		case err != nil:
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.WithError(err).Warn("reading command")
			}
			return
		}
		rsp, err := s.exec.Execute(buf[:n])
		if err != nil {
			s.log.WithError(err).Warn("executing command")
			return
		}
		if _, err := conn.Write(rsp); err != nil {
			s.log.WithError(err).Warn("writing response")
			return
		}
		if last {
			return
		}
	}
}
