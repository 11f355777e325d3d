// Copyright 2026 Blink Labs Software
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

package program

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/blinklabs-io/pollsync/address"
)

// PollRecord is the state of a poll account
type PollRecord struct {
	PollID      address.PollID
	Name        string
	Description string
	// VotingStart and VotingEnd are unix timestamps in seconds
	VotingStart int64
	VotingEnd   int64
}

// pollLayout is the borsh layout shared by the initialize_poll arguments
// and the PollAccount data
type pollLayout struct {
	PollID      uint64
	Name        string
	Description string
	VotingStart int64
	VotingEnd   int64
}

func (r PollRecord) layout() pollLayout {
	return pollLayout{
		PollID:      uint64(r.PollID),
		Name:        r.Name,
		Description: r.Description,
		VotingStart: r.VotingStart,
		VotingEnd:   r.VotingEnd,
	}
}

func (l pollLayout) record() PollRecord {
	return PollRecord{
		PollID:      address.PollID(l.PollID),
		Name:        l.Name,
		Description: l.Description,
		VotingStart: l.VotingStart,
		VotingEnd:   l.VotingEnd,
	}
}

func encodeWithDiscriminator(disc [8]byte, rec PollRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(&buf).Encode(rec.layout()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeWithDiscriminator(disc [8]byte, data []byte) (PollRecord, error) {
	if len(data) < len(disc) {
		return PollRecord{}, fmt.Errorf(
			"%w: %d bytes is shorter than the discriminator",
			ErrDecode,
			len(data),
		)
	}
	if !bytes.Equal(data[:len(disc)], disc[:]) {
		return PollRecord{}, fmt.Errorf(
			"%w: unexpected discriminator %x",
			ErrDecode,
			data[:len(disc)],
		)
	}
	var l pollLayout
	// Trailing bytes are account padding
	if err := bin.NewBorshDecoder(data[len(disc):]).Decode(&l); err != nil {
		return PollRecord{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return l.record(), nil
}

// EncodeInitializePoll returns the instruction data for initialize_poll
func EncodeInitializePoll(iface Interface, rec PollRecord) ([]byte, error) {
	return encodeWithDiscriminator(iface.InitializePollDiscriminator, rec)
}

func DecodeInitializePoll(iface Interface, data []byte) (PollRecord, error) {
	return decodeWithDiscriminator(iface.InitializePollDiscriminator, data)
}

// EncodePollAccount returns the account data the program stores for rec,
// zero padded to the allocated space
func EncodePollAccount(iface Interface, rec PollRecord) ([]byte, error) {
	data, err := encodeWithDiscriminator(iface.PollAccountDiscriminator, rec)
	if err != nil {
		return nil, err
	}
	space := iface.PollAccountSpace()
	if len(data) > space {
		return nil, fmt.Errorf(
			"%w: encoded account is %d bytes, space is %d",
			ErrPayloadTooLarge,
			len(data),
			space,
		)
	}
	ret := make([]byte, space)
	copy(ret, data)
	return ret, nil
}

// DecodePollAccount decodes poll account data. A discriminator mismatch
// or truncated layout returns ErrDecode.
func DecodePollAccount(iface Interface, data []byte) (PollRecord, error) {
	return decodeWithDiscriminator(iface.PollAccountDiscriminator, data)
}
