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

package program_test

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/pollsync/address"
	"github.com/blinklabs-io/pollsync/internal/test/fakeledger"
	"github.com/blinklabs-io/pollsync/ledger"
	"github.com/blinklabs-io/pollsync/program"
)

var testPayer = solana.MustPublicKeyFromBase58(
	"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
)

func newTestClient(t *testing.T) (*program.Client, *fakeledger.Ledger) {
	t.Helper()
	fake := fakeledger.New(program.DefaultInterface())
	client := program.NewClient(program.ClientConfig{Ledger: fake})
	return client, fake
}

func TestDefaultInterface(t *testing.T) {
	iface := program.DefaultInterface()
	assert.Equal(
		t,
		"F1sVUCiy8AMdmcQYgo4QueoZPayWvkYHEqyCK7cP66tZ",
		iface.ProgramID.String(),
	)
	assert.Equal(
		t,
		[8]byte{193, 22, 99, 197, 18, 33, 115, 117},
		iface.InitializePollDiscriminator,
	)
	assert.Equal(
		t,
		[8]byte{109, 254, 117, 41, 232, 74, 172, 45},
		iface.PollAccountDiscriminator,
	)
	assert.Equal(t, 32, iface.MaxNameLen)
	assert.Equal(t, 280, iface.MaxDescriptionLen)
	assert.Equal(t, 352, iface.PollAccountSpace())
}

func TestLoadInterfaceRejectsUnknownLayout(t *testing.T) {
	base := `{
  "address": "F1sVUCiy8AMdmcQYgo4QueoZPayWvkYHEqyCK7cP66tZ",
  "instructions": [{
    "name": "initialize_poll",
    "discriminator": [193, 22, 99, 197, 18, 33, 115, 117],
    "args": [ARGS]
  }],
  "accounts": [{"name": "PollAccount", "discriminator": [109, 254, 117, 41, 232, 74, 172, 45]}],
  "constants": [CONSTANTS]
}`
	goodArgs := `{"name":"poll_id","type":"u64"},{"name":"name","type":"string"},{"name":"description","type":"string"},{"name":"voting_start","type":"i64"},{"name":"voting_end","type":"i64"}`
	swappedArgs := `{"name":"poll_id","type":"u64"},{"name":"description","type":"string"},{"name":"name","type":"string"},{"name":"voting_start","type":"i64"},{"name":"voting_end","type":"i64"}`
	goodConstants := `{"name":"MAX_NAME_LEN","type":"u32","value":"64"},{"name":"MAX_DESCRIPTION_LEN","type":"u32","value":"512"}`
	testDefs := []struct {
		name      string
		args      string
		constants string
		wantErr   bool
	}{
		{name: "valid", args: goodArgs, constants: goodConstants},
		{name: "swapped fields", args: swappedArgs, constants: goodConstants, wantErr: true},
		{name: "missing constants", args: goodArgs, constants: ``, wantErr: true},
		{
			name:      "bad constant",
			args:      goodArgs,
			constants: `{"name":"MAX_NAME_LEN","type":"u32","value":"abc"},{"name":"MAX_DESCRIPTION_LEN","type":"u32","value":"512"}`,
			wantErr:   true,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			doc := strings.NewReplacer(
				"ARGS", testDef.args,
				"CONSTANTS", testDef.constants,
			).Replace(base)
			iface, err := program.LoadInterface([]byte(doc))
			if testDef.wantErr {
				assert.ErrorIs(t, err, program.ErrUnsupportedInterface)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 64, iface.MaxNameLen)
			assert.Equal(t, 512, iface.MaxDescriptionLen)
		})
	}
	_, err := program.LoadInterface([]byte("not json"))
	assert.ErrorIs(t, err, program.ErrUnsupportedInterface)
}

func TestBuildInitializePoll(t *testing.T) {
	client, fake := newTestClient(t)
	instr, err := client.BuildInitializePoll(
		42,
		"Languages",
		"Pick one",
		100,
		86500,
		testPayer,
	)
	require.NoError(t, err)
	assert.Equal(t, client.ProgramID(), instr.ProgramID())

	pda, err := address.Derive(42, client.ProgramID())
	require.NoError(t, err)
	accts := instr.Accounts()
	require.Len(t, accts, 3)
	assert.Equal(t, pda.Address, accts[0].PublicKey)
	assert.True(t, accts[0].IsWritable)
	assert.False(t, accts[0].IsSigner)
	assert.Equal(t, testPayer, accts[1].PublicKey)
	assert.True(t, accts[1].IsWritable)
	assert.True(t, accts[1].IsSigner)
	assert.Equal(t, solana.SystemProgramID, accts[2].PublicKey)
	assert.False(t, accts[2].IsWritable)
	assert.False(t, accts[2].IsSigner)

	data, err := instr.Data()
	require.NoError(t, err)
	assert.Equal(
		t,
		"c11663c5122173752a00000000000000090000004c616e677561676573080000005069636b206f6e656400000000000000e451010000000000",
		hex.EncodeToString(data),
	)
	rec, err := program.DecodeInitializePoll(client.Interface(), data)
	require.NoError(t, err)
	assert.Equal(t, address.PollID(42), rec.PollID)
	assert.Equal(t, "Languages", rec.Name)
	assert.Equal(t, "Pick one", rec.Description)
	assert.Equal(t, int64(100), rec.VotingStart)
	assert.Equal(t, int64(86500), rec.VotingEnd)

	assert.Equal(t, 0, fake.TotalCalls())
}

func TestBuildInitializePollValidation(t *testing.T) {
	client, fake := newTestClient(t)
	iface := client.Interface()
	testDefs := []struct {
		name        string
		pollName    string
		description string
		start       int64
		end         int64
		wantErr     error
	}{
		{
			name:        "empty name",
			description: "desc",
			start:       1,
			end:         2,
			wantErr:     program.ErrInvalidPayload,
		},
		{
			name:     "empty description",
			pollName: "name",
			start:    1,
			end:      2,
			wantErr:  program.ErrInvalidPayload,
		},
		{
			name:        "name too long",
			pollName:    strings.Repeat("n", iface.MaxNameLen+1),
			description: "desc",
			start:       1,
			end:         2,
			wantErr:     program.ErrPayloadTooLarge,
		},
		{
			name:        "description too long",
			pollName:    "name",
			description: strings.Repeat("d", iface.MaxDescriptionLen+1),
			start:       1,
			end:         2,
			wantErr:     program.ErrPayloadTooLarge,
		},
		{
			// Limits are in bytes, not characters
			name:        "multibyte name too long",
			pollName:    strings.Repeat("é", iface.MaxNameLen/2+1),
			description: "desc",
			start:       1,
			end:         2,
			wantErr:     program.ErrPayloadTooLarge,
		},
		{
			name:        "start equals end",
			pollName:    "name",
			description: "desc",
			start:       5,
			end:         5,
			wantErr:     program.ErrInvalidPayload,
		},
		{
			name:        "start after end",
			pollName:    "name",
			description: "desc",
			start:       6,
			end:         5,
			wantErr:     program.ErrInvalidPayload,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := client.BuildInitializePoll(
				1,
				testDef.pollName,
				testDef.description,
				testDef.start,
				testDef.end,
				testPayer,
			)
			assert.ErrorIs(t, err, testDef.wantErr)
		})
	}
	// Maximum lengths are accepted
	_, err := client.BuildInitializePoll(
		1,
		strings.Repeat("n", iface.MaxNameLen),
		strings.Repeat("d", iface.MaxDescriptionLen),
		1,
		2,
		testPayer,
	)
	require.NoError(t, err)
	assert.Equal(t, 0, fake.TotalCalls())
}

func TestPollAccountCodec(t *testing.T) {
	iface := program.DefaultInterface()
	rec := program.PollRecord{
		PollID:      7,
		Name:        "Colors",
		Description: "Pick a color",
		VotingStart: 1700000000,
		VotingEnd:   1700086400,
	}
	data, err := program.EncodePollAccount(iface, rec)
	require.NoError(t, err)
	assert.Len(t, data, iface.PollAccountSpace())
	decoded, err := program.DecodePollAccount(iface, data)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)

	// Instruction data is not account data
	instrData, err := program.EncodeInitializePoll(iface, rec)
	require.NoError(t, err)
	_, err = program.DecodePollAccount(iface, instrData)
	assert.ErrorIs(t, err, program.ErrDecode)

	_, err = program.DecodePollAccount(iface, data[:4])
	assert.ErrorIs(t, err, program.ErrDecode)
	_, err = program.DecodePollAccount(iface, data[:20])
	assert.ErrorIs(t, err, program.ErrDecode)
}

func TestFetchPoll(t *testing.T) {
	ctx := context.Background()
	client, fake := newTestClient(t)
	iface := client.Interface()

	pda, err := client.Derive(9)
	require.NoError(t, err)
	_, err = client.FetchPoll(ctx, pda.Address)
	assert.ErrorIs(t, err, program.ErrAccountNotFound)

	rec := program.PollRecord{
		PollID:      9,
		Name:        "Food",
		Description: "Lunch",
		VotingStart: 10,
		VotingEnd:   20,
	}
	data, err := program.EncodePollAccount(iface, rec)
	require.NoError(t, err)
	fake.SetAccount(pda.Address, ledger.Account{Owner: iface.ProgramID, Data: data})
	got, err := client.FetchPoll(ctx, pda.Address)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	// Same bytes owned by another program
	other := solana.PublicKey{1}
	fake.SetAccount(other, ledger.Account{Owner: solana.SystemProgramID, Data: data})
	_, err = client.FetchPoll(ctx, other)
	assert.ErrorIs(t, err, program.ErrDecode)
}

func TestListPolls(t *testing.T) {
	ctx := context.Background()
	client, fake := newTestClient(t)
	iface := client.Interface()
	for _, id := range []address.PollID{1, 2, 3} {
		pda, err := client.Derive(id)
		require.NoError(t, err)
		data, err := program.EncodePollAccount(iface, program.PollRecord{
			PollID:      id,
			Name:        "Poll " + id.String(),
			Description: "desc",
			VotingStart: 1,
			VotingEnd:   2,
		})
		require.NoError(t, err)
		fake.SetAccount(pda.Address, ledger.Account{Owner: iface.ProgramID, Data: data})
	}

	it, err := client.ListPolls(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.CallCount(fakeledger.MethodProgramAccounts))
	seen := make(map[address.PollID]bool)
	for it.Next() {
		pda, err := client.Derive(it.Record().PollID)
		require.NoError(t, err)
		assert.Equal(t, pda.Address, it.Address())
		seen[it.Record().PollID] = true
	}
	require.NoError(t, it.Err())
	assert.Len(t, seen, 3)
	// Exhausted iterators stay exhausted
	assert.False(t, it.Next())
	assert.Equal(t, 1, fake.CallCount(fakeledger.MethodProgramAccounts))
}

func TestListPollsDecodeFailureStops(t *testing.T) {
	ctx := context.Background()
	client, fake := newTestClient(t)
	iface := client.Interface()
	// Discriminator matches but the layout is truncated
	bad := append([]byte{}, iface.PollAccountDiscriminator[:]...)
	bad = append(bad, 1, 2, 3)
	fake.SetAccount(solana.PublicKey{}, ledger.Account{Owner: iface.ProgramID, Data: bad})

	polls, err := func() ([]program.Poll, error) {
		it, err := client.ListPolls(ctx)
		require.NoError(t, err)
		return it.Collect()
	}()
	assert.ErrorIs(t, err, program.ErrDecode)
	assert.Empty(t, polls)
}

func TestClassifyRejection(t *testing.T) {
	const (
		programInvoke = "Program F1sVUCiy8AMdmcQYgo4QueoZPayWvkYHEqyCK7cP66tZ invoke [1]"
		systemInvoke  = "Program 11111111111111111111111111111111 invoke [2]"
		allocateInUse = "Allocate: account Address { address: 3xyz, base: None } already in use"
		systemFailed  = "Program 11111111111111111111111111111111 failed: custom program error: 0x0"
	)
	testDefs := []struct {
		name    string
		logs    []string
		inUse   bool
		wantErr error
	}{
		{
			name: "system allocate in use",
			logs: []string{
				programInvoke,
				systemInvoke,
				allocateInUse,
				systemFailed,
			},
			inUse:   true,
			wantErr: program.ErrPollAlreadyExists,
		},
		{
			name: "program log lines do not close the system invoke",
			logs: []string{
				programInvoke,
				systemInvoke,
				"Program log: previous attempt failed",
				allocateInUse,
				systemFailed,
			},
			inUse:   true,
			wantErr: program.ErrPollAlreadyExists,
		},
		{
			name: "no allocate message",
			logs: []string{programInvoke, systemInvoke},
		},
		{
			name: "program log mentions already in use",
			logs: []string{
				programInvoke,
				"Program log: seat already in use",
				"Program F1sVUCiy8AMdmcQYgo4QueoZPayWvkYHEqyCK7cP66tZ failed: custom program error: 0x1770",
			},
		},
		{
			name: "allocate message outside system program",
			logs: []string{
				programInvoke,
				allocateInUse,
			},
		},
		{
			name: "allocate message with no invoke context",
			logs: []string{allocateInUse},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.Equal(t, testDef.inUse, program.IsAccountInUse(testDef.logs))
			err := program.ClassifyRejection(testDef.logs)
			if testDef.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, testDef.wantErr)
		})
	}
}
