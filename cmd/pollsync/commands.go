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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/blinklabs-io/pollsync"
	"github.com/blinklabs-io/pollsync/address"
	"github.com/blinklabs-io/pollsync/internal/config"
	"github.com/blinklabs-io/pollsync/program"
	"github.com/blinklabs-io/pollsync/querycache"
)

// withSession runs fn against a session built from the command's config
func withSession(
	cmd *cobra.Command,
	promRegistry prometheus.Registerer,
	fn func(ctx context.Context, s *session) error,
) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	logger := commonRun()
	s, err := newSession(cmd.Context(), cfg, logger, promRegistry)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cmd.Context(), s)
}

func parsePollID(arg string) (address.PollID, error) {
	v, ok := new(big.Int).SetString(arg, 10)
	if !ok {
		return 0, fmt.Errorf("%w: %q", pollsync.ErrInvalidIdentifier, arg)
	}
	return address.PollIDFromBig(v)
}

func formatTime(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

var (
	headerFmt  = color.New(color.FgGreen, color.Underline).SprintfFunc()
	successFmt = color.New(color.FgGreen).Add(color.Bold).SprintfFunc()
	warnFmt    = color.New(color.FgYellow).Add(color.Bold).SprintfFunc()
)

func printPolls(out io.Writer, polls []program.Poll) {
	tbl := table.New("ID", "Address", "Name", "Voting Start", "Voting End").
		WithHeaderFormatter(headerFmt).
		WithWriter(out)
	for _, p := range polls {
		tbl.AddRow(
			p.Record.PollID,
			p.Address,
			p.Record.Name,
			formatTime(p.Record.VotingStart),
			formatTime(p.Record.VotingEnd),
		)
	}
	tbl.Print()
}

func createPoll(
	ctx context.Context,
	out io.Writer,
	errOut io.Writer,
	client *pollsync.Client,
	id address.PollID,
	name string,
	description string,
) error {
	pda, err := client.Address(id)
	if err != nil {
		return err
	}
	sig, err := client.CreatePoll(ctx, id, name, description)
	switch pollsync.Outcome(err) {
	case pollsync.OutcomeConfirmed:
		fmt.Fprintf(
			out,
			"%s poll %s at %s\nsignature: %s\n",
			successFmt("created"),
			id,
			pda.Address,
			sig,
		)
		return nil
	case pollsync.OutcomeUnknown:
		fmt.Fprintf(
			errOut,
			"%s poll %s was submitted as %s but not confirmed in time. Run 'pollsync get %s' before trying again.\n",
			warnFmt("unknown:"),
			id,
			sig,
			id,
		)
		return err
	default:
		var rejectErr *pollsync.SubmissionRejectedError
		if errors.As(err, &rejectErr) {
			for _, line := range rejectErr.Logs {
				fmt.Fprintln(errOut, line)
			}
		}
		return err
	}
}

func createCommand() *cobra.Command {
	var pollID string
	cmd := &cobra.Command{
		Use:   "create <name> <description>",
		Short: "Create a poll open for voting from now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, nil, func(ctx context.Context, s *session) error {
				var id address.PollID
				var err error
				if pollID == "" {
					id, err = s.client.AllocatePollID(ctx)
				} else {
					id, err = parsePollID(pollID)
				}
				if err != nil {
					return err
				}
				return createPoll(
					ctx,
					cmd.OutOrStdout(),
					cmd.ErrOrStderr(),
					s.client,
					id,
					args[0],
					args[1],
				)
			})
		},
	}
	cmd.Flags().StringVar(&pollID, "id", "", "poll identifier (random unused id if empty)")
	return cmd
}

func showPoll(
	ctx context.Context,
	out io.Writer,
	client *pollsync.Client,
	id address.PollID,
) error {
	pda, err := client.Address(id)
	if err != nil {
		return err
	}
	rec, err := client.Reconcile(ctx, id)
	if err != nil {
		return err
	}
	printPolls(out, []program.Poll{{Address: pda.Address, Record: *rec}})
	fmt.Fprintf(out, "\n%s\n", rec.Description)
	return nil
}

func getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a poll read directly from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePollID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, nil, func(ctx context.Context, s *session) error {
				return showPoll(ctx, cmd.OutOrStdout(), s.client, id)
			})
		},
	}
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every poll owned by the program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, nil, func(ctx context.Context, s *session) error {
				res := s.client.AllPolls(ctx)
				if res.Err != nil {
					return res.Err
				}
				printPolls(os.Stdout, res.Data)
				return nil
			})
		},
	}
}

func deriveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "derive <id>",
		Short: "Print the account address of a poll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			id, err := parsePollID(args[0])
			if err != nil {
				return err
			}
			iface, err := loadInterface(cfg)
			if err != nil {
				return err
			}
			pda, err := address.Derive(id, iface.ProgramID)
			if err != nil {
				return err
			}
			fmt.Printf("%s (bump %d)\n", pda.Address, pda.Bump)
			return nil
		},
	}
}

func identityCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the signing identity, creating it on first use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, nil, func(ctx context.Context, s *session) error {
				payer, err := s.keyStore.Identity(ctx)
				if err != nil {
					return err
				}
				fmt.Println(payer)
				return nil
			})
		},
	}
}

func balanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the fee payer balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, nil, func(ctx context.Context, s *session) error {
				res, err := s.client.Balance(ctx)
				if err != nil {
					return err
				}
				if res.Err != nil {
					return res.Err
				}
				fmt.Printf(
					"%d lamports (%s SOL)\n",
					res.Data,
					formatSol(res.Data),
				)
				return nil
			})
		},
	}
}

func formatSol(lamports uint64) string {
	return new(big.Rat).SetFrac(
		new(big.Int).SetUint64(lamports),
		new(big.Int).SetUint64(solana.LAMPORTS_PER_SOL),
	).FloatString(9)
}

func airdropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop [lamports]",
		Short: "Request an airdrop to the fee payer (devnet and local clusters)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var lamports uint64 = solana.LAMPORTS_PER_SOL
			if len(args) == 1 {
				var err error
				lamports, err = strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid lamports %q: %w", args[0], err)
				}
			}
			return withSession(cmd, nil, func(ctx context.Context, s *session) error {
				sig, err := s.client.RequestAirdrop(ctx, lamports)
				if err != nil {
					return err
				}
				fmt.Printf("%s %s\n", successFmt("airdrop confirmed:"), sig)
				return nil
			})
		},
	}
}

func serveMetrics(
	logger *slog.Logger,
	registry *prometheus.Registry,
	port uint,
) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "component", programName, "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "component", programName, "error", err)
		}
	}()
	return srv
}

func watchCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the poll list and print it whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			if interval <= 0 {
				return errors.New("interval must be positive")
			}
			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			return withSession(cmd, registry, func(ctx context.Context, s *session) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				if cfg.MetricsPort > 0 {
					srv := serveMetrics(s.logger, registry, cfg.MetricsPort)
					defer srv.Close()
				}
				// The initial fetch is delivered as an update like any other
				sub, _ := s.client.SubscribeAllPolls(ctx)
				defer sub.Close()
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						// Invalidation refetches the subscribed list
						s.client.Cache().Invalidate(ctx, pollsync.AllPollsKey)
					case evt, ok := <-sub.Events():
						if !ok {
							return nil
						}
						updated, ok := evt.Data.(querycache.UpdatedEvent)
						if !ok || updated.Entry.IsLoading() {
							continue
						}
						if updated.Entry.Err != nil {
							s.logger.Warn("failed to fetch polls", "error", updated.Entry.Err)
							continue
						}
						polls, _ := updated.Entry.Data.([]program.Poll)
						fmt.Printf("\n%s\n", updated.Entry.UpdatedAt.UTC().Format(time.RFC3339))
						printPolls(os.Stdout, polls)
					}
				}
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "how often to refresh the poll list")
	return cmd
}
