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

import "encoding/binary"

// Unmarshal functions read from buf starting at *offset and advance *offset
// past the bytes they consumed. On error the value of *offset is unspecified.
//
// Marshal functions write to the start of buf and return the number of bytes
// written. The integer marshallers never write when they fail; composite
// marshallers chain calls on buf[n:] and may leave a partial encoding behind.

// remaining returns how many bytes can still be read at offset, or -1 if the
// offset is outside the buffer.
func remaining(buf []byte, offset int) int {
	if offset < 0 || offset > len(buf) {
		return -1
	}
	return len(buf) - offset
}

// UnmarshalU8 reads a single byte.
func UnmarshalU8(buf []byte, offset *int) (uint8, error) {
	if remaining(buf, *offset) < 1 {
		return 0, TPMRCInsufficient
	}
	v := buf[*offset]
	*offset++
	return v, nil
}

// UnmarshalU16 reads a big-endian uint16.
func UnmarshalU16(buf []byte, offset *int) (uint16, error) {
	if remaining(buf, *offset) < 2 {
		return 0, TPMRCInsufficient
	}
	v := binary.BigEndian.Uint16(buf[*offset:])
	*offset += 2
	return v, nil
}

// UnmarshalU32 reads a big-endian uint32.
func UnmarshalU32(buf []byte, offset *int) (uint32, error) {
	if remaining(buf, *offset) < 4 {
		return 0, TPMRCInsufficient
	}
	v := binary.BigEndian.Uint32(buf[*offset:])
	*offset += 4
	return v, nil
}

// MarshalU8 writes a single byte.
func MarshalU8(buf []byte, v uint8) (int, error) {
	if len(buf) < 1 {
		return 0, TPMRCInsufficient
	}
	buf[0] = v
	return 1, nil
}

// MarshalU16 writes a big-endian uint16.
func MarshalU16(buf []byte, v uint16) (int, error) {
	if len(buf) < 2 {
		return 0, TPMRCInsufficient
	}
	binary.BigEndian.PutUint16(buf, v)
	return 2, nil
}

// MarshalU32 writes a big-endian uint32.
func MarshalU32(buf []byte, v uint32) (int, error) {
	if len(buf) < 4 {
		return 0, TPMRCInsufficient
	}
	binary.BigEndian.PutUint32(buf, v)
	return 4, nil
}

// UnmarshalTag reads a TPMI_ST_COMMAND_TAG.
func UnmarshalTag(buf []byte, offset *int) (TPMST, error) {
	v, err := UnmarshalU16(buf, offset)
	if err != nil {
		return TPMSTUnrecognized, err
	}
	tag := TPMSTFromWire(v)
	if tag == TPMSTUnrecognized {
		return tag, TPMRCBadTag
	}
	return tag, nil
}

// UnmarshalCommandCode reads a TPM_CC. Command codes the emulator does not
// implement are rejected here.
func UnmarshalCommandCode(buf []byte, offset *int) (TPMCC, error) {
	v, err := UnmarshalU32(buf, offset)
	if err != nil {
		return TPMCCUnrecognized, err
	}
	cc := TPMCCFromWire(v)
	if cc == TPMCCUnrecognized {
		return cc, TPMRCCommandCode
	}
	return cc, nil
}

// UnmarshalResponseCode reads a TPM_RC. Any value is accepted.
func UnmarshalResponseCode(buf []byte, offset *int) (TPMRC, error) {
	v, err := UnmarshalU32(buf, offset)
	if err != nil {
		return TPMRCSuccess, err
	}
	return TPMRC(v), nil
}

// UnmarshalStartupType reads a TPM_SU.
func UnmarshalStartupType(buf []byte, offset *int) (TPMSU, error) {
	v, err := UnmarshalU16(buf, offset)
	if err != nil {
		return TPMSUUnrecognized, err
	}
	su := TPMSUFromWire(v)
	if su == TPMSUUnrecognized {
		return su, TPMRCValue
	}
	return su, nil
}

// UnmarshalCapability reads a TPM_CAP.
func UnmarshalCapability(buf []byte, offset *int) (TPMCap, error) {
	v, err := UnmarshalU32(buf, offset)
	if err != nil {
		return TPMCapUnrecognized, err
	}
	c := TPMCapFromWire(v)
	if c == TPMCapUnrecognized {
		return c, TPMRCValue
	}
	return c, nil
}

// UnmarshalPropertyType reads a TPM_PT.
func UnmarshalPropertyType(buf []byte, offset *int) (TPMPT, error) {
	v, err := UnmarshalU32(buf, offset)
	if err != nil {
		return TPMPTUnrecognized, err
	}
	pt := TPMPTFromWire(v)
	if pt == TPMPTUnrecognized {
		return pt, TPMRCValue
	}
	return pt, nil
}

// UnmarshalCommandHeader reads the tag, size and command code of a command.
func UnmarshalCommandHeader(buf []byte, offset *int) (CommandHeader, error) {
	var hdr CommandHeader
	var err error
	if hdr.Tag, err = UnmarshalTag(buf, offset); err != nil {
		return CommandHeader{}, err
	}
	if hdr.Size, err = UnmarshalU32(buf, offset); err != nil {
		return CommandHeader{}, err
	}
	if hdr.CommandCode, err = UnmarshalCommandCode(buf, offset); err != nil {
		return CommandHeader{}, err
	}
	return hdr, nil
}

// UnmarshalResponseHeader reads the tag, size and response code of a
// response.
func UnmarshalResponseHeader(buf []byte, offset *int) (ResponseHeader, error) {
	var hdr ResponseHeader
	var err error
	if hdr.Tag, err = UnmarshalTag(buf, offset); err != nil {
		return ResponseHeader{}, err
	}
	if hdr.Size, err = UnmarshalU32(buf, offset); err != nil {
		return ResponseHeader{}, err
	}
	if hdr.ResponseCode, err = UnmarshalResponseCode(buf, offset); err != nil {
		return ResponseHeader{}, err
	}
	return hdr, nil
}

// UnmarshalStartupArgs reads the parameters of TPM2_Startup.
func UnmarshalStartupArgs(buf []byte, offset *int) (StartupArgs, error) {
	su, err := UnmarshalStartupType(buf, offset)
	if err != nil {
		return StartupArgs{}, err
	}
	return StartupArgs{StartupType: su}, nil
}

// UnmarshalGetCapabilityArgs reads the parameters of TPM2_GetCapability.
func UnmarshalGetCapabilityArgs(buf []byte, offset *int) (GetCapabilityArgs, error) {
	var args GetCapabilityArgs
	var err error
	if args.Capability, err = UnmarshalCapability(buf, offset); err != nil {
		return GetCapabilityArgs{}, err
	}
	if args.Property, err = UnmarshalU32(buf, offset); err != nil {
		return GetCapabilityArgs{}, err
	}
	if args.PropertyCount, err = UnmarshalU32(buf, offset); err != nil {
		return GetCapabilityArgs{}, err
	}
	return args, nil
}

// UnmarshalTaggedProperty reads a TPMS_TAGGED_PROPERTY.
func UnmarshalTaggedProperty(buf []byte, offset *int) (TPMSTaggedProperty, error) {
	var p TPMSTaggedProperty
	var err error
	if p.Property, err = UnmarshalPropertyType(buf, offset); err != nil {
		return TPMSTaggedProperty{}, err
	}
	if p.Value, err = UnmarshalU32(buf, offset); err != nil {
		return TPMSTaggedProperty{}, err
	}
	return p, nil
}

// UnmarshalCapabilityUnion reads a selector followed by the matching
// TPMU_CAPABILITIES member.
func UnmarshalCapabilityUnion(buf []byte, offset *int) (TPMUCapabilities, error) {
	sel, err := UnmarshalCapability(buf, offset)
	if err != nil {
		return TPMUCapabilities{}, err
	}
	var props TPMLTaggedTPMProperty
	count, err := UnmarshalU32(buf, offset)
	if err != nil {
		return TPMUCapabilities{}, err
	}
	if count > MaxTPMProperties {
		return TPMUCapabilities{}, TPMRCSize
	}
	for i := uint32(0); i < count; i++ {
		p, err := UnmarshalTaggedProperty(buf, offset)
		if err != nil {
			return TPMUCapabilities{}, err
		}
		props.TPMProperty[i] = p
	}
	props.Count = count
	return NewTPMUCapabilities(sel, &props), nil
}

// UnmarshalGetCapabilityResponse reads the response parameters of
// TPM2_GetCapability.
func UnmarshalGetCapabilityResponse(buf []byte, offset *int) (GetCapabilityResponse, error) {
	more, err := UnmarshalU8(buf, offset)
	if err != nil {
		return GetCapabilityResponse{}, err
	}
	if more > 1 {
		return GetCapabilityResponse{}, TPMRCValue
	}
	data, err := UnmarshalCapabilityUnion(buf, offset)
	if err != nil {
		return GetCapabilityResponse{}, err
	}
	return GetCapabilityResponse{
		MoreData:       more == 1,
		CapabilityData: data,
	}, nil
}

// MarshalTag writes a TPMI_ST_COMMAND_TAG.
func MarshalTag(buf []byte, tag TPMST) (int, error) {
	if TPMSTFromWire(uint16(tag)) == TPMSTUnrecognized {
		return 0, TPMRCBadTag
	}
	return MarshalU16(buf, uint16(tag))
}

// MarshalCommandCode writes a TPM_CC.
func MarshalCommandCode(buf []byte, cc TPMCC) (int, error) {
	if TPMCCFromWire(uint32(cc)) == TPMCCUnrecognized {
		return 0, TPMRCCommandCode
	}
	return MarshalU32(buf, uint32(cc))
}

// MarshalResponseCode writes a TPM_RC.
func MarshalResponseCode(buf []byte, rc TPMRC) (int, error) {
	return MarshalU32(buf, uint32(rc))
}

// MarshalStartupType writes a TPM_SU.
func MarshalStartupType(buf []byte, su TPMSU) (int, error) {
	if TPMSUFromWire(uint16(su)) == TPMSUUnrecognized {
		return 0, TPMRCValue
	}
	return MarshalU16(buf, uint16(su))
}

// MarshalCapability writes a TPM_CAP.
func MarshalCapability(buf []byte, c TPMCap) (int, error) {
	if TPMCapFromWire(uint32(c)) == TPMCapUnrecognized {
		return 0, TPMRCValue
	}
	return MarshalU32(buf, uint32(c))
}

// MarshalPropertyType writes a TPM_PT.
func MarshalPropertyType(buf []byte, pt TPMPT) (int, error) {
	if TPMPTFromWire(uint32(pt)) == TPMPTUnrecognized {
		return 0, TPMRCValue
	}
	return MarshalU32(buf, uint32(pt))
}

// MarshalCommandHeader writes the tag, size and command code of a command.
func MarshalCommandHeader(buf []byte, hdr *CommandHeader) (int, error) {
	n, err := MarshalTag(buf, hdr.Tag)
	if err != nil {
		return 0, err
	}
	w, err := MarshalU32(buf[n:], hdr.Size)
	if err != nil {
		return 0, err
	}
	n += w
	w, err = MarshalCommandCode(buf[n:], hdr.CommandCode)
	if err != nil {
		return 0, err
	}
	return n + w, nil
}

// MarshalResponseHeader writes the tag, size and response code of a
// response.
func MarshalResponseHeader(buf []byte, hdr *ResponseHeader) (int, error) {
	n, err := MarshalTag(buf, hdr.Tag)
	if err != nil {
		return 0, err
	}
	w, err := MarshalU32(buf[n:], hdr.Size)
	if err != nil {
		return 0, err
	}
	n += w
	w, err = MarshalResponseCode(buf[n:], hdr.ResponseCode)
	if err != nil {
		return 0, err
	}
	return n + w, nil
}

// MarshalStartupArgs writes the parameters of TPM2_Startup.
func MarshalStartupArgs(buf []byte, args *StartupArgs) (int, error) {
	return MarshalStartupType(buf, args.StartupType)
}

// MarshalGetCapabilityArgs writes the parameters of TPM2_GetCapability.
func MarshalGetCapabilityArgs(buf []byte, args *GetCapabilityArgs) (int, error) {
	n, err := MarshalCapability(buf, args.Capability)
	if err != nil {
		return 0, err
	}
	w, err := MarshalU32(buf[n:], args.Property)
	if err != nil {
		return 0, err
	}
	n += w
	w, err = MarshalU32(buf[n:], args.PropertyCount)
	if err != nil {
		return 0, err
	}
	return n + w, nil
}

// MarshalTaggedProperty writes a TPMS_TAGGED_PROPERTY.
func MarshalTaggedProperty(buf []byte, p *TPMSTaggedProperty) (int, error) {
	n, err := MarshalPropertyType(buf, p.Property)
	if err != nil {
		return 0, err
	}
	w, err := MarshalU32(buf[n:], p.Value)
	if err != nil {
		return 0, err
	}
	return n + w, nil
}

// MarshalCapabilityUnion writes the union selector followed by the selected
// member. The selector is always written, even where the enclosing structure
// already implies it.
func MarshalCapabilityUnion(buf []byte, u *TPMUCapabilities) (int, error) {
	props, err := u.TPMProperties()
	if err != nil {
		return 0, TPMRCValue
	}
	if props.Count > MaxTPMProperties {
		return 0, TPMRCValue
	}
	n, err := MarshalCapability(buf, u.Capability())
	if err != nil {
		return 0, err
	}
	w, err := MarshalU32(buf[n:], props.Count)
	if err != nil {
		return 0, err
	}
	n += w
	for i := range props.Properties() {
		w, err = MarshalTaggedProperty(buf[n:], &props.TPMProperty[i])
		if err != nil {
			return 0, err
		}
		n += w
	}
	return n, nil
}

// MarshalGetCapabilityResponse writes the response parameters of
// TPM2_GetCapability.
func MarshalGetCapabilityResponse(buf []byte, rsp *GetCapabilityResponse) (int, error) {
	var more uint8
	if rsp.MoreData {
		more = 1
	}
	n, err := MarshalU8(buf, more)
	if err != nil {
		return 0, err
	}
	w, err := MarshalCapabilityUnion(buf[n:], &rsp.CapabilityData)
	if err != nil {
		return 0, err
	}
	return n + w, nil
}
