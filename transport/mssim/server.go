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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-tpm-emulator/internal/metrics"
	"github.com/google/go-tpm-emulator/tpm2"
	"github.com/google/go-tpm-emulator/transport"
	"github.com/sirupsen/logrus"
)

// Name labels the transport in logs and metrics.
const Name = "mssim"

// Server answers the command and platform ports of the simulator protocol.
type Server struct {
	exec *transport.Executor
	log  *logrus.Entry
}

// NewServer creates a server that executes commands and platform signals on
// exec.
func NewServer(exec *transport.Executor, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		exec: exec,
		log:  log.WithField("transport", Name),
	}
}

// connHandler serves one connection. It returns true if the client asked the
// whole server to stop.
type connHandler func(conn net.Conn) bool

// Serve accepts connections on both ports until ctx is done or a client sends
// STOP. It closes both listeners and waits for open connections before
// returning. It returns nil after a cancellation or STOP.
func (s *Server) Serve(ctx context.Context, command, platform net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		command.Close()
		platform.Close()
	}()

	errs := make(chan error, 2)
	for _, p := range []struct {
		port   string
		l      net.Listener
		handle connHandler
	}{
		{"command", command, s.handleCommand},
		{"platform", platform, s.handlePlatform},
	} {
		s.log.WithFields(logrus.Fields{"port": p.port, "addr": p.l.Addr().String()}).Info("listening")
		wg.Add(1)
		go func(port string, l net.Listener, handle connHandler) {
			defer wg.Done()
			errs <- s.accept(ctx, cancel, &wg, port, l, handle)
		}(p.port, p.l, p.handle)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

func (s *Server) accept(ctx context.Context, stop context.CancelFunc, wg *sync.WaitGroup, port string, l net.Listener, handle connHandler) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept on %s port: %w", port, err)
		}
		metrics.RecordConnection(Name, port)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			closeOnDone := context.AfterFunc(ctx, func() { conn.Close() })
			defer closeOnDone()
			if handle(conn) {
				s.log.WithField("port", port).Info("stop requested")
				stop()
			}
		}()
	}
}

// handleCommand serves the command port.
func (s *Server) handleCommand(conn net.Conn) bool {
	log := s.log.WithField("port", "command")
	for {
		var code commandCode
		if err := binary.Read(conn, binary.BigEndian, &code); err != nil {
			logReadError(log, err)
			return false
		}
		switch code {
		case tpmSendCommand:
			locality, cmd, err := readSendCommand(conn, tpm2.MaxCommandSize)
			if err != nil {
				logReadError(log, err)
				return false
			}
			rsp, err := s.exec.Execute(cmd)
			if errors.Is(err, transport.ErrPoweredOff) {
				log.Debug("command sent while powered off")
				rsp = nil
			}
			log.WithFields(logrus.Fields{"locality": locality, "size": len(cmd)}).Trace("executed command")
			if _, err := conn.Write(sendCommandResponse(rsp)); err != nil {
				log.WithError(err).Warn("writing response")
				return false
			}
		case tpmRemoteHandshake:
			var clientVersion uint32
			if err := binary.Read(conn, binary.BigEndian, &clientVersion); err != nil {
				logReadError(log, err)
				return false
			}
			if clientVersion == 0 {
				log.Warn("handshake from client version 0")
				return false
			}
			reply := []uint32{serverVersion, flagPlatformAvailable | flagInRawMode | flagSupportsPP, 0}
			if err := binary.Write(conn, binary.BigEndian, reply); err != nil {
				log.WithError(err).Warn("writing handshake")
				return false
			}
		case tpmSessionEnd:
			return false
		case tpmStop:
			return true
		default:
			log.WithField("command", code.String()).Warn("unsupported command; closing connection")
			return false
		}
	}
}

// handlePlatform serves the platform port.
func (s *Server) handlePlatform(conn net.Conn) bool {
	log := s.log.WithField("port", "platform")
	for {
		var signal platformSignal
		if err := binary.Read(conn, binary.BigEndian, &signal); err != nil {
			logReadError(log, err)
			return false
		}
		switch signal {
		case platformPowerOn:
			s.exec.PowerOn()
		case platformPowerOff:
			s.exec.PowerOff()
		case platformReset, platformRestart:
			s.exec.Reset()
		case platformPPOn, platformPPOff, platformCancelOn, platformCancelOff,
			platformNVOn, platformNVOff, platformKeyCacheOn, platformKeyCacheOff:
			s.exec.Signal(signal.String())
		case platformSessionEnd:
			return false
		case platformStop:
			return true
		default:
			log.WithField("signal", signal.String()).Warn("unsupported signal; closing connection")
			return false
		}
		if err := binary.Write(conn, binary.BigEndian, uint32(0)); err != nil {
			log.WithError(err).Warn("writing platform result")
			return false
		}
	}
}

func logReadError(log *logrus.Entry, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return
	}
	log.WithError(err).Warn("reading request")
}
