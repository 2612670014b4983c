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

package main

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/go-tpm-emulator/internal/config"
	"github.com/google/go-tpm-emulator/transport/mssim"
	"github.com/google/go-tpm-emulator/transport/uds"
	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/spf13/cobra"
)

// clientFlags select the TPM a client command talks to.
type clientFlags struct {
	transport       string
	socket          string
	commandAddress  string
	platformAddress string
	powerOn         bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringVarP(&f.transport, "transport", "t", defaults.Transport, "Transport to use: uds or mssim")
	flags.StringVar(&f.socket, "socket", defaults.SocketPath, "Unix socket path for the uds transport")
	flags.StringVar(&f.commandAddress, "command-addr", defaults.CommandAddress, "Command port address for the mssim transport")
	flags.StringVar(&f.platformAddress, "platform-addr", defaults.PlatformAddress, "Platform port address for the mssim transport")
	flags.BoolVar(&f.powerOn, "power-on", false, "Send POWER_ON before the command (mssim only)")
}

func (f *clientFlags) open() (transport.TPMCloser, error) {
	switch f.transport {
	case config.TransportUDS:
		return uds.Open(f.socket)
	case config.TransportMSSIM:
		tpm, err := mssim.Open(mssim.Config{
			CommandAddress:  f.commandAddress,
			PlatformAddress: f.platformAddress,
		})
		if err != nil {
			return nil, err
		}
		if f.powerOn {
			if err := tpm.PowerOn(); err != nil {
				tpm.Close()
				return nil, err
			}
		}
		return tpm, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalid, f.transport)
	}
}

func newStartupCommand() *cobra.Command {
	var f clientFlags
	var startupType string
	cmd := &cobra.Command{
		Use:   "startup",
		Short: "Send TPM2_Startup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var su tpm2.TPMSU
			switch strings.ToLower(startupType) {
			case "clear":
				su = tpm2.TPMSUClear
			case "state":
				su = tpm2.TPMSUState
			default:
				return fmt.Errorf("unknown startup type %q", startupType)
			}
			tpm, err := f.open()
			if err != nil {
				return err
			}
			defer tpm.Close()
			if _, err := (tpm2.Startup{StartupType: su}).Execute(tpm); err != nil {
				return fmt.Errorf("TPM2_Startup failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Success!")
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&startupType, "type", "clear", "Startup type: clear or state")
	return cmd
}

func newGetCapCommand() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "getcap",
		Short: "Read TPM_PT_MANUFACTURER with TPM2_GetCapability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tpm, err := f.open()
			if err != nil {
				return err
			}
			defer tpm.Close()
			rsp, err := tpm2.GetCapability{
				Capability:    tpm2.TPMCapTPMProperties,
				Property:      uint32(tpm2.TPMPTManufacturer),
				PropertyCount: 1,
			}.Execute(tpm)
			if err != nil {
				return fmt.Errorf("TPM2_GetCapability failed: %w", err)
			}
			props, err := rsp.CapabilityData.Data.TPMProperties()
			if err != nil {
				return err
			}
			if len(props.TPMProperty) != 1 || props.TPMProperty[0].Property != tpm2.TPMPTManufacturer {
				return fmt.Errorf("TPM2_GetCapability returned %d unexpected properties", len(props.TPMProperty))
			}
			v := props.TPMProperty[0].Value
			fmt.Fprintf(cmd.OutOrStdout(), "TPM_PT_MANUFACTURER: 0x%08x %q\n", v, vendorString(v))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// vendorString renders a vendor ID property as its ASCII characters.
func vendorString(v uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return strings.TrimRight(string(b[:]), "\x00")
}
