package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentsea/taskara/internal/config"
	"github.com/agentsea/taskara/internal/store"
)

// trackersCommand manages the registry of peer trackers tasks can be
// mirrored to.
func trackersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trackers",
		Short: "Manage registered peer trackers",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name> <endpoint>",
			Short: "Register a peer tracker endpoint",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
					return st.SaveTracker(ctx, &store.TrackerRecord{
						ID:       uuid.NewString(),
						Name:     args[0],
						Endpoint: args[1],
						Created:  float64(time.Now().UnixNano()) / 1e9,
					})
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List registered peer trackers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
					recs, err := st.ListTrackers(ctx)
					if err != nil {
						return err
					}
					for _, rec := range recs {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rec.Name, rec.Endpoint)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <name>",
			Short: "Remove a peer tracker registration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
					return st.DeleteTracker(ctx, args[0])
				})
			},
		},
	)
	return cmd
}

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	cfg := config.Load()
	st, err := store.Connect(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(ctx, st)
}
