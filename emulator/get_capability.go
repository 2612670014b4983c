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

// getCapability implements TPM2_GetCapability.
func (t *Instance) getCapability(args *tpm2.GetCapabilityArgs) (tpm2.GetCapabilityResponse, error) {
	switch args.Capability {
	case tpm2.TPMCapTPMProperties:
		props, err := t.tpmProperties(args.Property, args.PropertyCount)
		if err != nil {
			return tpm2.GetCapabilityResponse{}, err
		}
		return tpm2.GetCapabilityResponse{
			MoreData:       false,
			CapabilityData: tpm2.NewTPMUCapabilities(tpm2.TPMCapTPMProperties, props),
		}, nil
	default:
		return tpm2.GetCapabilityResponse{}, tpm2.TPMRCValue
	}
}

// tpmProperties returns the TPM_CAP_TPM_PROPERTIES list starting at
// property. Only TPM_PT_MANUFACTURER is populated, and the list never
// continues past it, so count is not consulted.
func (t *Instance) tpmProperties(property, count uint32) (*tpm2.TPMLTaggedTPMProperty, error) {
	var props tpm2.TPMLTaggedTPMProperty
	switch tpm2.TPMPTFromWire(property) {
	case tpm2.TPMPTManufacturer:
		if err := props.Append(tpm2.TPMSTaggedProperty{
			Property: tpm2.TPMPTManufacturer,
			Value:    t.opts.Manufacturer,
		}); err != nil {
			return nil, err
		}
	default:
		return nil, tpm2.TPMRCValue
	}
	return &props, nil
}
