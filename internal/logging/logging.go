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

// Package logging configures the logrus logger shared by the emulator's
// servers and bridges the emulator's diagnostic sink into it.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/google/go-tpm-emulator/emulator"
	"github.com/sirupsen/logrus"
)

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to out at the named level and format.
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	switch format {
	case FormatText, "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// EmulatorSink returns an emulator.LogFunc that logs each message at debug
// level on entry.
func EmulatorSink(entry *logrus.Entry) emulator.LogFunc {
	return func(msg string) {
		entry.Debug(msg)
	}
}

// ToggleDebug switches logger between debug level and level. It returns the
// level now in effect.
func ToggleDebug(logger *logrus.Logger, level logrus.Level) logrus.Level {
	next := logrus.DebugLevel
	if logger.GetLevel() == logrus.DebugLevel {
		next = level
	}
	logger.SetLevel(next)
	return next
}
