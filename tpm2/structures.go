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

package tpm2

import "fmt"

// CommandHeader is the envelope of an inbound command.
type CommandHeader struct {
	Tag TPMST
	// Size is the length of the whole command, header included.
	Size        uint32
	CommandCode TPMCC
}

// ResponseHeader is the envelope of an outbound response.
type ResponseHeader struct {
	Tag TPMST
	// Size is the length of the whole response, header included.
	Size         uint32
	ResponseCode TPMRC
}

// StartupArgs are the parameters of TPM2_Startup.
type StartupArgs struct {
	StartupType TPMSU
}

// GetCapabilityArgs are the parameters of TPM2_GetCapability.
type GetCapabilityArgs struct {
	Capability TPMCap
	// Property is the first property to return. Its meaning depends on
	// Capability, so it is kept raw.
	Property      uint32
	PropertyCount uint32
}

// TPMSTaggedProperty represents a TPMS_TAGGED_PROPERTY.
// See definition in Part 2: Structures, section 10.8.2.
type TPMSTaggedProperty struct {
	Property TPMPT
	Value    uint32
}

// TPMLTaggedTPMProperty represents a TPML_TAGGED_TPM_PROPERTY with a fixed
// capacity. Only the first Count entries are meaningful.
// See definition in Part 2: Structures, section 10.9.8.
type TPMLTaggedTPMProperty struct {
	Count       uint32
	TPMProperty [MaxTPMProperties]TPMSTaggedProperty
}

// Append adds a property to the list.
func (l *TPMLTaggedTPMProperty) Append(p TPMSTaggedProperty) error {
	if l.Count >= MaxTPMProperties {
		return TPMRCSize
	}
	l.TPMProperty[l.Count] = p
	l.Count++
	return nil
}

// Properties returns the populated entries.
func (l *TPMLTaggedTPMProperty) Properties() []TPMSTaggedProperty {
	n := l.Count
	if n > MaxTPMProperties {
		n = MaxTPMProperties
	}
	return l.TPMProperty[:n]
}

// TPMUCapabilities represents a TPMU_CAPABILITIES. The selector travels with
// the contents so the union can be marshalled on its own.
// See definition in Part 2: Structures, section 10.10.1.
type TPMUCapabilities struct {
	selector      TPMCap
	tpmProperties *TPMLTaggedTPMProperty
}

// NewTPMUCapabilities instantiates a TPMUCapabilities with the given
// contents. The contents must match the selector.
func NewTPMUCapabilities(selector TPMCap, contents *TPMLTaggedTPMProperty) TPMUCapabilities {
	return TPMUCapabilities{
		selector:      selector,
		tpmProperties: contents,
	}
}

// Capability returns the union selector.
func (u TPMUCapabilities) Capability() TPMCap {
	if u.tpmProperties == nil {
		return TPMCapUnrecognized
	}
	return u.selector
}

// TPMProperties returns the 'tpmProperties' member of the union.
func (u TPMUCapabilities) TPMProperties() (*TPMLTaggedTPMProperty, error) {
	if u.selector != TPMCapTPMProperties || u.tpmProperties == nil {
		return nil, fmt.Errorf("did not contain tpmProperties (selector value was %v)", u.selector)
	}
	return u.tpmProperties, nil
}

// GetCapabilityResponse is the response of TPM2_GetCapability.
type GetCapabilityResponse struct {
	MoreData       bool
	CapabilityData TPMUCapabilities
}
