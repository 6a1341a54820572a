package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/env"
)

// toolInfo is what `fhevmkit info` reports
type toolInfo struct {
	Version      string `json:"version"`
	Environment  string `json:"environment"`
	KeyCache     string `json:"keyCache"`
	RPCURL       string `json:"rpcUrl"`
	Server       string `json:"server"`
	MockChains   string `json:"mockChains"`
	LocalClients string `json:"localClients"`
	Strict       bool   `json:"strictRelayerMetadata"`
}

func createInfoCmd(version string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show environment and effective settings",
		Long: `Display the detected runtime environment, the key cache backend and the
chains that are treated as local test chains.

EXAMPLES:
  fhevmkit info
  fhevmkit info --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.OutOrStdout(), version, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runInfo(out io.Writer, version string, jsonOutput bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	mock, err := getMockChains()
	if err != nil {
		return err
	}

	info := toolInfo{
		Version:      version,
		Environment:  string(env.Detect()),
		KeyCache:     cfg.Storage.Type,
		RPCURL:       getRPCURL(),
		Server:       getServer(),
		MockChains:   chains.FormatMockChains(chains.MergeMockChains(mock)),
		LocalClients: strings.Join(getLocalClients(cfg), ","),
		Strict:       cfg.Chain.StrictRelayerMetadata,
	}

	if jsonOutput {
		return writeJSON(out, info)
	}

	fmt.Fprintf(out, "Version:       %s\n", info.Version)
	fmt.Fprintf(out, "Environment:   %s\n", info.Environment)
	fmt.Fprintf(out, "Key cache:     %s\n", info.KeyCache)
	fmt.Fprintf(out, "RPC URL:       %s\n", info.RPCURL)
	fmt.Fprintf(out, "Server:        %s\n", info.Server)
	fmt.Fprintf(out, "Mock chains:   %s\n", info.MockChains)
	fmt.Fprintf(out, "Local clients: %s\n", info.LocalClients)
	if info.Strict {
		fmt.Fprintln(out, "Relayer metadata: strict")
	}

	return nil
}
