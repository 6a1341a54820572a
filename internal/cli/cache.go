package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/keycache"
	"github.com/pendergraft/fhevmkit/internal/storage"
	"github.com/pendergraft/fhevmkit/internal/validation"
)

func createCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and edit the public key cache",
		Long: `Inspect and edit the key cache configured by KEY_CACHE_TYPE.

Public keys are stored under fhevm:publicKey:<acl> and public params under
fhevm:publicParams:<acl>. The memory backend does not outlive the command,
so these commands are meant for the sqlite, postgres and leveldb backends.

EXAMPLES:
  KEY_CACHE_TYPE=sqlite fhevmkit cache keys
  KEY_CACHE_TYPE=sqlite fhevmkit cache show 0x687820221192C5B662b25367F70076A37bc79b6c
  KEY_CACHE_TYPE=sqlite fhevmkit cache forget 0x687820221192C5B662b25367F70076A37bc79b6c
`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store storage.Store) error {
				value, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("key not found: %s", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store storage.Store) error {
				return store.Set(cmd.Context(), args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <key>",
		Short: "Remove a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store storage.Store) error {
				return store.Remove(cmd.Context(), args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keys [prefix]",
		Short: "List stored keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return withStore(cmd.Context(), func(store storage.Store) error {
				keys, err := store.Keys(cmd.Context(), prefix)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <acl-address>",
		Short: "Show the cached key material for an ACL contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateAddress(args[0]); err != nil {
				return err
			}
			return withStore(cmd.Context(), func(store storage.Store) error {
				m, err := keycache.New(store).Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printKeyMaterial(cmd.OutOrStdout(), args[0], m)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget <acl-address>",
		Short: "Remove the cached key material for an ACL contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateAddress(args[0]); err != nil {
				return err
			}
			return withStore(cmd.Context(), func(store storage.Store) error {
				if err := keycache.New(store).Forget(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot key material for %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

// withStore opens the configured key cache for the duration of fn
func withStore(ctx context.Context, fn func(storage.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.New(cfg.Storage, newLogger())
	if err != nil {
		return fmt.Errorf("opening key cache: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating key cache: %w", err)
	}
	return fn(store)
}

func printKeyMaterial(out io.Writer, acl string, m keycache.PublicKeyMaterial) {
	fmt.Fprintf(out, "ACL: %s\n", acl)
	if m.IsZero() {
		fmt.Fprintln(out, "No key material cached")
		return
	}
	fmt.Fprintf(out, "Public key:    %d bytes\n", len(m.PublicKey))
	fmt.Fprintf(out, "Public params: %d bytes\n", len(m.PublicParams))
}
