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

package emulator

import "github.com/google/go-tpm-emulator/tpm2"

// startup implements TPM2_Startup. The instance is marked started whatever
// the outcome; a second Startup without an intervening _TPM_Init fails with
// TPM_RC_INITIALIZE.
//
// TODO: restore saved state for TPM_SU_STATE once Shutdown(STATE) exists.
func (t *Instance) startup(args *tpm2.StartupArgs) error {
	already := t.started
	t.started = true
	if already {
		return tpm2.TPMRCInitialize
	}
	t.logf("started with %v", args.StartupType)
	return nil
}
