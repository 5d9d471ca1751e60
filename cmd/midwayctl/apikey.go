package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/apikey"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/services"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/token"
	"github.com/spf13/cobra"
)

func apikeyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	var (
		permissions []string
		expiresIn   string
		requests    int64
		window      string
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []apikey.CreateOption
			if len(permissions) > 0 {
				opts = append(opts, apikey.WithPermissions(permissions...))
			}
			if expiresIn != "" {
				d, err := apikey.ParseWindow(expiresIn)
				if err != nil {
					return fmt.Errorf("invalid --expires-in: %w", err)
				}
				opts = append(opts, apikey.WithExpiresIn(d))
			}
			if requests > 0 || window != "" {
				rl := apikey.DefaultRateLimit
				if requests > 0 {
					rl.Requests = requests
				}
				if window != "" {
					rl.Duration = window
				}
				opts = append(opts, apikey.WithRateLimit(rl.Requests, rl.Duration))
			}
			return run(cmd, func(ctx context.Context, svc *services.Services) error {
				key, err := svc.APIKeys.Create(ctx, args[0], opts...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created API key:\n")
				fmt.Fprintf(out, "  ID: %s\n", key.ID)
				fmt.Fprintf(out, "  Name: %s\n", key.Name)
				fmt.Fprintf(out, "  Permissions: %s\n", strings.Join(key.Permissions, ", "))
				fmt.Fprintf(out, "  Rate limit: %d per %s\n", key.RateLimit.Requests, key.RateLimit.Duration)
				if key.ExpiresAt != nil {
					fmt.Fprintf(out, "  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
				}
				fmt.Fprintf(out, "\nAPI Key (save this - it won't be shown again):\n  %s\n", key.Secret)
				return nil
			})
		},
	}
	create.Flags().StringSliceVar(&permissions, "permission", nil, "permission to grant, repeatable (default *)")
	create.Flags().StringVar(&expiresIn, "expires-in", "", "expire the key after this long, e.g. 30d")
	create.Flags().Int64Var(&requests, "requests", 0, "requests allowed per window")
	create.Flags().StringVar(&window, "window", "", "rate limit window, e.g. 1h or 1d")
	c.AddCommand(create)

	c.AddCommand(&cobra.Command{
		Use:   "revoke <secret>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc *services.Services) error {
				if err := svc.APIKeys.Revoke(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key %s\n", token.MaskSecret(args[0]))
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "validate <secret>",
		Short: "Check an API key and show its grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc *services.Services) error {
				key, err := svc.APIKeys.Validate(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "valid: %s (%s)\n", key.Name, key.ID)
				fmt.Fprintf(out, "permissions: %s\n", strings.Join(key.Permissions, ", "))
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc *services.Services) error {
				keys, err := svc.APIKeys.List(ctx)
				if err != nil {
					return err
				}
				if len(keys) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No API keys found")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSECRET\tPERMISSIONS\tRATE_LIMIT\tEXPIRES")
				for _, k := range keys {
					expires := "never"
					if k.ExpiresAt != nil {
						expires = k.ExpiresAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%s\t%s\n",
						k.ID, k.Name, token.MaskSecret(k.Secret), strings.Join(k.Permissions, ","),
						k.RateLimit.Requests, k.RateLimit.Duration, expires)
				}
				return w.Flush()
			})
		},
	})
	return c
}
