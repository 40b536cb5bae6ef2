package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/artpar/toolgate/adapters/clock"
	"github.com/artpar/toolgate/adapters/hasher"
	"github.com/artpar/toolgate/app"
	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/ports"
	"github.com/spf13/cobra"
)

func newKeysCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
		Long: `Manage toolgate API keys.

Each owner (tenant) can hold several keys. A key carries one tier
(free, professional or enterprise) that decides its quota and features.

Examples:
  toolgate keys create --owner acme --tier professional
  toolgate keys list --owner acme
  toolgate keys set-tier key_abc123 enterprise
  toolgate keys revoke key_abc123`,
	}

	cmd.AddCommand(
		newKeysCreateCmd(opts),
		newKeysListCmd(opts),
		newKeysRevokeCmd(opts),
		newKeysSetTierCmd(opts),
	)
	return cmd
}

// withKeyService opens the database and runs fn against a key service.
func withKeyService(opts *rootOptions, fn func(ctx context.Context, svc *app.KeyService) error) error {
	cfg, stores, err := opts.openStores()
	if err != nil {
		return err
	}
	defer stores.Close()

	svc := app.NewKeyService(stores.Keys, hasher.NewBcrypt(cfg.Auth.BcryptCost), clock.Real{}, cfg.Auth.KeyPrefix)
	return fn(context.Background(), svc)
}

func newKeysCreateCmd(opts *rootOptions) *cobra.Command {
	var owner, name, tierName string
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tier.Parse(tierName)
			if err != nil {
				return err
			}
			params := key.CreateParams{Owner: owner, Name: name, Tier: t}
			if expiresIn > 0 {
				at := time.Now().UTC().Add(expiresIn)
				params.ExpiresAt = &at
			}

			return withKeyService(opts, func(ctx context.Context, svc *app.KeyService) error {
				issued, err := svc.Create(ctx, params)
				if err != nil {
					return fmt.Errorf("failed to create key: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s Created %s key for %s\n", checkMark, issued.Tier, issued.Owner)
				fmt.Fprintln(out)
				fmt.Fprintln(out, "API Key (save this, shown once):")
				fmt.Fprintf(out, "  %s\n", issued.RawKey)
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Key ID: %s\n", issued.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account (required)")
	cmd.Flags().StringVar(&name, "name", "", "key name (optional)")
	cmd.Flags().StringVar(&tierName, "tier", string(tier.Free), "tier: free, professional or enterprise")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "expire the key after this duration (e.g. 720h)")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func newKeysListCmd(opts *rootOptions) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyService(opts, func(ctx context.Context, svc *app.KeyService) error {
				keys, err := svc.List(ctx, owner)
				if err != nil {
					return fmt.Errorf("failed to list keys: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(keys) == 0 {
					fmt.Fprintf(out, "No keys found for %s.\n", owner)
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Create a key with: toolgate keys create --owner=<owner>")
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPREFIX\tTIER\tSTATUS\tCREATED")
				fmt.Fprintln(w, "--\t------\t----\t------\t-------")
				for _, k := range keys {
					status := "active"
					switch {
					case k.RevokedAt != nil:
						status = "revoked"
					case !k.Active:
						status = "expired"
					}
					fmt.Fprintf(w, "%s\t%s...\t%s\t%s\t%s\n", k.ID, k.Prefix, k.Tier, status, k.CreatedAt.Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owning account (required)")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func newKeysRevokeCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID := args[0]
			return withKeyService(opts, func(ctx context.Context, svc *app.KeyService) error {
				k, err := svc.Get(ctx, keyID)
				if errors.Is(err, ports.ErrNotFound) {
					return fmt.Errorf("key not found: %s", keyID)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if k.RevokedAt != nil {
					fmt.Fprintf(out, "Key %s is already revoked.\n", keyID)
					return nil
				}

				if !yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Revoke key %s of %s?", keyID, k.Owner)) {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}

				if err := svc.Revoke(ctx, keyID); err != nil {
					return fmt.Errorf("failed to revoke key: %w", err)
				}
				fmt.Fprintf(out, "%s Revoked key: %s\n", checkMark, keyID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func newKeysSetTierCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier <key-id> <tier>",
		Short: "Move an API key to another tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tier.Parse(args[1])
			if err != nil {
				return err
			}
			return withKeyService(opts, func(ctx context.Context, svc *app.KeyService) error {
				k, err := svc.SetTier(ctx, args[0], t)
				if errors.Is(err, ports.ErrNotFound) {
					return fmt.Errorf("key not found: %s", args[0])
				}
				if err != nil {
					return fmt.Errorf("failed to set tier: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Key %s is now %s\n", checkMark, k.ID, k.Tier)
				return nil
			})
		},
	}
}

func confirm(in io.Reader, out io.Writer, message string) bool {
	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "? %s [y/N]: ", message)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}

