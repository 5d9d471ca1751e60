package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/services"
	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "session",
		Short: "Inspect and end login sessions",
	}

	c.AddCommand(&cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's active sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc *services.Services) error {
				sessions, err := svc.Sessions.ActiveSessions(ctx, args[0])
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No active sessions for user", args[0])
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tIP\tUSER_AGENT\tCREATED\tLAST_ACTIVE")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Device.IP, s.Device.UserAgent,
						s.CreatedAt.Format(time.RFC3339), s.LastActive.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	})

	var all bool
	invalidate := &cobra.Command{
		Use:   "invalidate <session-id | user-id>",
		Short: "End a session, or every session of a user with --all",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc *services.Services) error {
				if all {
					n, err := svc.Sessions.InvalidateAll(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %d session(s) for user %s\n", n, args[0])
					return nil
				}
				ok, err := svc.Sessions.Invalidate(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("session %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated session %s\n", args[0])
				return nil
			})
		},
	}
	invalidate.Flags().BoolVar(&all, "all", false, "treat the argument as a user id and end all of their sessions")
	c.AddCommand(invalidate)
	return c
}

func cacheCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached reads",
	}
	c.AddCommand(&cobra.Command{
		Use:   "clear [pattern]",
		Short: "Remove cached entries matching a glob (default *)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			return run(cmd, func(ctx context.Context, svc *services.Services) error {
				n := svc.Cache.Clear(ctx, pattern)
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries matching %s\n", n, pattern)
				return nil
			})
		},
	})
	return c
}
