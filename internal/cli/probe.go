package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/chains/evm"
	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/validation"
)

// probeReport is what `fhevmkit probe` reports
type probeReport struct {
	RPCURL          string                  `json:"rpcUrl"`
	ClientVersion   string                  `json:"clientVersion"`
	Client          string                  `json:"client"`
	Version         string                  `json:"version,omitempty"`
	ChainID         int64                   `json:"chainId"`
	LocalTestClient bool                    `json:"localTestClient"`
	Metadata        *chains.RelayerMetadata `json:"relayerMetadata,omitempty"`
	MetadataError   string                  `json:"relayerMetadataError,omitempty"`
}

func createProbeCmd() *cobra.Command {
	var attempts uint
	var delay time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Inspect a node",
		Long: `Wait for the node to answer, then report its client version, chain id
and, for local test nodes, the relayer metadata it exposes.

EXAMPLES:
  # Wait up to 30s for a freshly started Hardhat node
  fhevmkit probe --attempts 15 --delay 2s

  fhevmkit probe --rpc-url http://localhost:8545 --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), cmd.OutOrStdout(), attempts, delay, jsonOutput)
		},
	}

	cmd.Flags().UintVar(&attempts, "attempts", 1, "number of attempts while waiting for the node")
	cmd.Flags().DurationVar(&delay, "delay", 2*time.Second, "delay between attempts")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runProbe(ctx context.Context, out io.Writer, attempts uint, delay time.Duration, jsonOutput bool) error {
	url := getRPCURL()
	if err := validation.ValidateRPCURL(url); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	probe := evm.NewProbe(evm.WithLogger(newLogger()))

	version, err := evm.WaitForNode(ctx, probe, url, attempts, delay)
	if err != nil {
		return err
	}
	chainID, err := probe.ChainID(ctx, url)
	if err != nil {
		return err
	}

	cv := chains.ParseClientVersion(version)
	report := probeReport{
		RPCURL:          url,
		ClientVersion:   version,
		Client:          cv.Name,
		Version:         cv.Version,
		ChainID:         chainID,
		LocalTestClient: chains.IsLocalTestClient(version, getLocalClients(cfg)),
	}

	if report.LocalTestClient {
		meta, err := probe.RelayerMetadata(ctx, url)
		switch {
		case err != nil:
			report.MetadataError = err.Error()
		case meta == nil:
			report.MetadataError = "node returned no relayer metadata"
		default:
			if err := validation.ValidateRelayerMetadata(meta); err != nil {
				report.MetadataError = err.Error()
			}
			report.Metadata = meta
		}
	}

	if jsonOutput {
		return writeJSON(out, report)
	}

	fmt.Fprintf(out, "RPC URL:  %s\n", report.RPCURL)
	fmt.Fprintf(out, "Client:   %s\n", report.ClientVersion)
	if report.Version != "" {
		fmt.Fprintf(out, "Version:  %s\n", report.Version)
	}
	fmt.Fprintf(out, "Chain ID: %d\n", report.ChainID)
	fmt.Fprintf(out, "Local test node: %t\n", report.LocalTestClient)
	if report.Metadata != nil {
		fmt.Fprintln(out, "Relayer metadata:")
		fmt.Fprintf(out, "  ACL:            %s\n", report.Metadata.ACLAddress)
		fmt.Fprintf(out, "  Input verifier: %s\n", report.Metadata.InputVerifierAddress)
		fmt.Fprintf(out, "  KMS verifier:   %s\n", report.Metadata.KMSVerifierAddress)
	}
	if report.MetadataError != "" {
		fmt.Fprintf(out, "Relayer metadata unusable: %s\n", report.MetadataError)
	}
	return nil
}
