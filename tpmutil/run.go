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

// Package tpmutil provides framing helpers for moving TPM 2.0 command and
// response buffers over byte streams.
//
// Both commands and responses start with a 10-byte header whose bytes 2..6
// hold the big-endian size of the whole buffer, header included. Transports
// use that size to find the end of a frame.
package tpmutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the size of a command or response header.
const HeaderSize = 10

// MaxFrameSize is the largest frame ReadFrame accepts by default.
const MaxFrameSize = 4096

var (
	// ErrShortHeader indicates that fewer than HeaderSize bytes were given
	// to FrameSize.
	ErrShortHeader = errors.New("TPM frame header is truncated")
	// ErrFrameSize indicates that a header declared a size smaller than the
	// header itself or larger than the caller allows.
	ErrFrameSize = errors.New("TPM frame has an invalid size")
)

// FrameSize returns the total frame size declared by a command or response
// header.
func FrameSize(header []byte) (uint32, error) {
	if len(header) < HeaderSize {
		return 0, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(header))
	}
	return binary.BigEndian.Uint32(header[2:6]), nil
}

// ReadFrame reads one complete frame from r into buf and returns its length.
// The frame may be at most len(buf) bytes long.
func ReadFrame(r io.Reader, buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("%w: buffer of %d bytes cannot hold a header", ErrFrameSize, len(buf))
	}
	if _, err := io.ReadFull(r, buf[:HeaderSize]); err != nil {
		return 0, err
	}
	size, err := FrameSize(buf)
	if err != nil {
		return 0, err
	}
	if size < HeaderSize || uint64(size) > uint64(len(buf)) {
		return 0, fmt.Errorf("%w: header declares %d bytes, limit is %d", ErrFrameSize, size, len(buf))
	}
	if _, err := io.ReadFull(r, buf[HeaderSize:size]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return int(size), nil
}

// RunCommand writes the command buffer cmd to rw and reads back one complete
// response frame.
func RunCommand(rw io.ReadWriter, cmd []byte) ([]byte, error) {
	if rw == nil {
		return nil, errors.New("nil TPM handle")
	}
	if _, err := rw.Write(cmd); err != nil {
		return nil, err
	}
	rsp := make([]byte, MaxFrameSize)
	n, err := ReadFrame(rw, rsp)
	if err != nil {
		return nil, err
	}
	return rsp[:n], nil
}
