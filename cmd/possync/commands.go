package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bft-labs/possync/pkg/log"
	"github.com/bft-labs/possync/pkg/possync"
)

// withStore loads configuration, opens the local store and runs fn.
func (c *cli) withStore(cmd *cobra.Command, fn func(ctx context.Context, svc *possync.Service) error) error {
	logger, err := c.load(cmd)
	if err != nil {
		return err
	}
	svc, err := c.newService(logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := svc.Open(ctx); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("close store", log.Err(err))
		}
	}()
	return fn(ctx, svc)
}

func (c *cli) pendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List unsynced transactions in sync order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, svc *possync.Service) error {
				txs, err := svc.Pending(ctx)
				if err != nil {
					return err
				}
				if txs == nil {
					txs = []possync.Transaction{}
				}
				return writeJSON(cmd.OutOrStdout(), txs)
			})
		},
	}
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the local sync status",
		Long: `Print the local sync status. Connectivity is whatever --assume-online
says, since no daemon is consulted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(ctx context.Context, svc *possync.Service) error {
				st, err := svc.SyncStatus(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func (c *cli) enqueueCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "enqueue <payload|->",
		Short: "Queue a sale payload (JSON object); '-' reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := []byte(args[0])
			if args[0] == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				payload = b
			}
			return c.withStore(cmd, func(ctx context.Context, svc *possync.Service) error {
				got, err := svc.EnqueueWithID(ctx, id, json.RawMessage(payload))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), got)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "transaction ID (default: generated)")
	return cmd
}

// writeJSON prints v compactly; indentation would rewrite raw payloads.
func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
