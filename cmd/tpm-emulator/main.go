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

// Command tpm-emulator runs an emulated TPM 2.0 behind a Unix socket or the
// reference simulator's TCP protocol, and can send it basic commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tpm-emulator",
		Short: "A TPM 2.0 command emulator",
		Long: `tpm-emulator executes TPM 2.0 command buffers against an in-memory TPM.
It serves them over a Unix domain socket or the TCP protocol of the TPM 2.0
reference simulator, and includes small clients for both.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newStartupCommand())
	rootCmd.AddCommand(newGetCapCommand())
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
