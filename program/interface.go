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
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

const (
	InitializePollInstruction = "initialize_poll"
	PollAccountName           = "PollAccount"
	MaxNameLenConstant        = "MAX_NAME_LEN"
	MaxDescriptionLenConstant = "MAX_DESCRIPTION_LEN"
)

// Field order of both the initialize_poll arguments and the PollAccount
// layout
var pollFields = []string{
	"poll_id",
	"name",
	"description",
	"voting_start",
	"voting_end",
}

//go:embed idl/voting.json
var votingIDL []byte

var ErrUnsupportedInterface = errors.New("unsupported program interface")

// Interface holds what the client needs to know about the deployed voting
// program, as published in its IDL
type Interface struct {
	ProgramID                   solana.PublicKey
	InitializePollDiscriminator [8]byte
	PollAccountDiscriminator    [8]byte
	MaxNameLen                  int
	MaxDescriptionLen           int
}

// PollAccountSpace returns the allocated size of a poll account
func (i Interface) PollAccountSpace() int {
	// discriminator, poll_id, two length-prefixed strings, two timestamps
	return 8 + 8 + 4 + i.MaxNameLen + 4 + i.MaxDescriptionLen + 8 + 8
}

type idlDocument struct {
	Address      string           `json:"address"`
	Instructions []idlInstruction `json:"instructions"`
	Accounts     []idlAccount     `json:"accounts"`
	Types        []idlType        `json:"types"`
	Constants    []idlConstant    `json:"constants"`
}

type idlInstruction struct {
	Name    string   `json:"name"`
	RawDisc []int    `json:"discriminator"`
	Args    []idlArg `json:"args"`
}

type idlArg struct {
	Name string `json:"name"`
	Type any    `json:"type"`
}

type idlAccount struct {
	Name    string `json:"name"`
	RawDisc []int  `json:"discriminator"`
}

type idlType struct {
	Name string `json:"name"`
	Type struct {
		Kind   string   `json:"kind"`
		Fields []idlArg `json:"fields"`
	} `json:"type"`
}

type idlConstant struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DefaultInterface returns the interface of the voting program embedded in
// this package
func DefaultInterface() Interface {
	iface, err := LoadInterface(votingIDL)
	if err != nil {
		panic(fmt.Sprintf("embedded IDL is invalid: %s", err))
	}
	return iface
}

// LoadInterfaceFile reads an IDL from disk
func LoadInterfaceFile(path string) (Interface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Interface{}, fmt.Errorf("read IDL: %w", err)
	}
	return LoadInterface(data)
}

// LoadInterface parses an Anchor IDL document
func LoadInterface(data []byte) (Interface, error) {
	var doc idlDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Interface{}, fmt.Errorf("%w: %w", ErrUnsupportedInterface, err)
	}
	var ret Interface
	programID, err := solana.PublicKeyFromBase58(doc.Address)
	if err != nil {
		return Interface{}, fmt.Errorf(
			"%w: invalid program address: %w",
			ErrUnsupportedInterface,
			err,
		)
	}
	ret.ProgramID = programID
	// Instruction
	idx := slices.IndexFunc(doc.Instructions, func(i idlInstruction) bool {
		return i.Name == InitializePollInstruction
	})
	if idx < 0 {
		return Interface{}, fmt.Errorf(
			"%w: missing instruction %s",
			ErrUnsupportedInterface,
			InitializePollInstruction,
		)
	}
	instr := doc.Instructions[idx]
	if ret.InitializePollDiscriminator, err = discriminator(instr.RawDisc); err != nil {
		return Interface{}, err
	}
	if err := checkFields(instr.Name, instr.Args); err != nil {
		return Interface{}, err
	}
	// Account
	acctIdx := slices.IndexFunc(doc.Accounts, func(a idlAccount) bool {
		return a.Name == PollAccountName
	})
	if acctIdx < 0 {
		return Interface{}, fmt.Errorf(
			"%w: missing account %s",
			ErrUnsupportedInterface,
			PollAccountName,
		)
	}
	if ret.PollAccountDiscriminator, err = discriminator(doc.Accounts[acctIdx].RawDisc); err != nil {
		return Interface{}, err
	}
	for _, t := range doc.Types {
		if t.Name != PollAccountName {
			continue
		}
		if err := checkFields(t.Name, t.Type.Fields); err != nil {
			return Interface{}, err
		}
	}
	// Limits
	for _, c := range doc.Constants {
		switch c.Name {
		case MaxNameLenConstant:
			ret.MaxNameLen, err = parseLimit(c)
		case MaxDescriptionLenConstant:
			ret.MaxDescriptionLen, err = parseLimit(c)
		}
		if err != nil {
			return Interface{}, err
		}
	}
	if ret.MaxNameLen == 0 || ret.MaxDescriptionLen == 0 {
		return Interface{}, fmt.Errorf(
			"%w: missing %s or %s constant",
			ErrUnsupportedInterface,
			MaxNameLenConstant,
			MaxDescriptionLenConstant,
		)
	}
	return ret, nil
}

func discriminator(raw []int) ([8]byte, error) {
	var ret [8]byte
	if len(raw) != len(ret) {
		return ret, fmt.Errorf(
			"%w: discriminator must be %d bytes, got %d",
			ErrUnsupportedInterface,
			len(ret),
			len(raw),
		)
	}
	for i, v := range raw {
		if v < 0 || v > 255 {
			return ret, fmt.Errorf("%w: invalid discriminator byte %d", ErrUnsupportedInterface, v)
		}
		ret[i] = byte(v)
	}
	return ret, nil
}

func checkFields(owner string, fields []idlArg) error {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	if !slices.Equal(names, pollFields) {
		return fmt.Errorf(
			"%w: %s has fields %v, expected %v",
			ErrUnsupportedInterface,
			owner,
			names,
			pollFields,
		)
	}
	return nil
}

func parseLimit(c idlConstant) (int, error) {
	v, err := strconv.ParseUint(c.Value, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf(
			"%w: invalid %s value %q",
			ErrUnsupportedInterface,
			c.Name,
			c.Value,
		)
	}
	return int(v), nil
}
