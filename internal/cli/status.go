package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/validation"
	"github.com/pendergraft/fhevmkit/pkg/client"
)

func createStatusCmd() *cobra.Command {
	var wait time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the instance bound by a running server",
		Long: `Show the instance state of a running fhevmkit-server.

EXAMPLES:
  fhevmkit status
  fhevmkit status --wait 30s   # wait for an in-flight build
  fhevmkit status --server http://fhevm.internal:8080 --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(getServer())
			var st *client.State
			var err error
			if wait > 0 {
				st, err = c.WaitState(cmd.Context(), wait)
			} else {
				st, err = c.State(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			return printServerState(cmd.OutOrStdout(), st, jsonOutput)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for a build to finish")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createRefreshCmd() *cobra.Command {
	var wait time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the instance bound by a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(getServer())
			st, err := c.Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to refresh: %w", err)
			}
			st, err = settle(cmd.Context(), c, st, wait)
			if err != nil {
				return err
			}
			return printServerState(cmd.OutOrStdout(), st, jsonOutput)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "wait up to this long for the rebuild (0 = return immediately)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createBindCmd() *cobra.Command {
	var chainID int64
	var disable bool
	var wait time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Point a running server at an endpoint",
		Long: `Change the endpoint a running fhevmkit-server binds to. The server
rebuilds its instance whenever the endpoint, chain id or enabled flag changes.

EXAMPLES:
  fhevmkit bind --rpc-url http://localhost:8545
  fhevmkit bind --rpc-url https://devnet.example.com --chain-id 9000
  fhevmkit bind --disable
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req client.ConfigRequest
			enabled := !disable
			req.Enabled = &enabled

			if !disable {
				url := getRPCURL()
				if err := validation.ValidateRPCURL(url); err != nil {
					return err
				}
				req.RPCURL = &url
			}
			if cmd.Flags().Changed("chain-id") {
				if err := validation.ValidateChainID(chainID); err != nil {
					return err
				}
				req.ChainID = &chainID
			}

			c := client.New(getServer())
			st, err := c.Configure(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to configure server: %w", err)
			}
			st, err = settle(cmd.Context(), c, st, wait)
			if err != nil {
				return err
			}
			return printServerState(cmd.OutOrStdout(), st, jsonOutput)
		},
	}

	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "expected chain id")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable the binding and drop the instance")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "wait up to this long for the build (0 = return immediately)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// settle waits for a loading state to finish when wait is positive
func settle(ctx context.Context, c *client.Client, st *client.State, wait time.Duration) (*client.State, error) {
	if wait <= 0 || st.Status != "loading" {
		return st, nil
	}
	settled, err := c.WaitState(ctx, wait)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return settled, nil
}

func printServerState(out io.Writer, st *client.State, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(out, st)
	}

	fmt.Fprintf(out, "Status:   %s\n", statusLabel(st.Status, isTerminal(out)))
	fmt.Fprintf(out, "Enabled:  %t\n", st.Enabled)
	if st.Endpoint != "" {
		fmt.Fprintf(out, "Endpoint: %s\n", st.Endpoint)
	}
	if st.ChainID != nil {
		fmt.Fprintf(out, "Chain ID: %d\n", *st.ChainID)
	}
	if st.Instance != nil {
		fmt.Fprintf(out, "Instance: %s\n", st.Instance.Path)
		if st.Instance.ACLAddress != "" {
			fmt.Fprintf(out, "ACL:      %s\n", st.Instance.ACLAddress)
		}
	}
	if st.Error != nil {
		fmt.Fprintf(out, "Error:    [%s] %s\n", st.Error.Code, st.Error.Message)
	}
	return nil
}
