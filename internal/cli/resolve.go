package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/chains/evm"
	"github.com/pendergraft/fhevmkit/internal/resolver"
	"github.com/pendergraft/fhevmkit/internal/validation"
)

func createResolveCmd() *cobra.Command {
	var useProvider bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the chain behind an endpoint",
		Long: `Query the endpoint's chain id and report whether it is a local test chain.

With --provider the node is reached through an injected provider
connection instead of a direct RPC URL, the way a wallet is used.

EXAMPLES:
  fhevmkit resolve
  fhevmkit resolve --rpc-url http://localhost:8545 --json
  MOCK_CHAINS=1337=http://devnet:8545 fhevmkit resolve --rpc-url http://devnet:8545 --provider
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cmd.OutOrStdout(), useProvider, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&useProvider, "provider", false, "reach the node through a provider connection")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runResolve(ctx context.Context, out io.Writer, useProvider, jsonOutput bool) error {
	url := getRPCURL()
	if err := validation.ValidateRPCURL(url); err != nil {
		return err
	}
	mock, err := getMockChains()
	if err != nil {
		return err
	}

	endpoint, closeEndpoint, err := openEndpoint(ctx, url, useProvider)
	if err != nil {
		return err
	}
	defer closeEndpoint()

	probe := evm.NewProbe(evm.WithLogger(newLogger()))
	cc, err := resolver.Resolve(ctx, probe, endpoint, mock)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, cc)
	}

	fmt.Fprintf(out, "Endpoint:   %s (%s)\n", endpoint, endpoint.Kind())
	fmt.Fprintf(out, "Chain ID:   %d\n", cc.ChainID)
	fmt.Fprintf(out, "Local test: %t\n", cc.IsLocalTest)
	if cc.RPCURL != "" {
		fmt.Fprintf(out, "RPC URL:    %s\n", cc.RPCURL)
	}
	return nil
}

// openEndpoint returns a URL endpoint, or a provider endpoint backed by a
// live RPC connection. The returned func releases the connection.
func openEndpoint(ctx context.Context, url string, useProvider bool) (chains.Endpoint, func(), error) {
	if !useProvider {
		return chains.URLEndpoint(url), func() {}, nil
	}
	p, err := evm.NewRPCProvider(ctx, url)
	if err != nil {
		return chains.Endpoint{}, nil, err
	}
	return chains.ProviderEndpoint(p), p.Close, nil
}
