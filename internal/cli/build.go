package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/env"
	"github.com/pendergraft/fhevmkit/internal/instances/domain"
	"github.com/pendergraft/fhevmkit/internal/validation"
)

// buildFlags are shared by build and watch
type buildFlags struct {
	useProvider bool
	chainID     int64
	strict      bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.useProvider, "provider", false, "reach the node through a provider connection")
	cmd.Flags().Int64Var(&f.chainID, "chain-id", 0, "expected chain id (default from config)")
	cmd.Flags().BoolVar(&f.strict, "strict-metadata", false, "fail when a local node returns malformed relayer metadata")
}

// expectedChainID returns the --chain-id flag, the project chain_id or
// CHAIN_ID, in that order. Nil means no expectation.
func (f *buildFlags) expectedChainID(cmd *cobra.Command, cfg *config.Config) (*int64, error) {
	var id int64
	if cmd.Flags().Changed("chain-id") {
		id = f.chainID
	} else if pc := loadProjectConfigSilent(); pc != nil && pc.ChainID != 0 {
		id = pc.ChainID
	} else if cfg.Chain.ChainID != 0 {
		id = cfg.Chain.ChainID
	} else {
		return nil, nil
	}
	if err := validation.ValidateChainID(id); err != nil {
		return nil, err
	}
	return &id, nil
}

// newBuilder selects the environment and assembles a logged builder. The
// returned func closes the key cache.
func newBuilder(ctx context.Context, cfg *config.Config, strict bool, logger *slog.Logger) (domain.Builder, func(), error) {
	caps, err := env.Select(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}

	svc := domain.NewServiceFor(caps,
		domain.WithLocalClients(getLocalClients(cfg)),
		domain.WithStrictRelayerMetadata(cfg.Chain.StrictRelayerMetadata || strict),
		domain.WithLogger(logger),
	)
	return domain.LoggingMiddleware(logger)(svc), func() { caps.Close() }, nil
}

func createBuildCmd() *cobra.Command {
	var flags buildFlags
	var timeout time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an instance once",
		Long: `Resolve the endpoint and build an instance: a local test instance for
recognized local FHE test nodes, otherwise a production instance through
the relayer SDK. Build progress is printed on stderr.

EXAMPLES:
  fhevmkit build
  fhevmkit build --rpc-url http://localhost:8545 --chain-id 31337
  fhevmkit build --provider --timeout 30s --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runBuild(ctx, cmd, cmd.OutOrStdout(), cmd.ErrOrStderr(), flags, jsonOutput)
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the build after this long (0 = no limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, out, errOut io.Writer, flags buildFlags, jsonOutput bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	url := getRPCURL()
	if err := validation.ValidateRPCURL(url); err != nil {
		return err
	}
	mock, err := getMockChains()
	if err != nil {
		return err
	}
	chainID, err := flags.expectedChainID(cmd, cfg)
	if err != nil {
		return err
	}

	logger := newLogger()
	builder, closeBuilder, err := newBuilder(ctx, cfg, flags.strict, logger)
	if err != nil {
		return err
	}
	defer closeBuilder()

	endpoint, closeEndpoint, err := openEndpoint(ctx, url, flags.useProvider)
	if err != nil {
		return err
	}
	defer closeEndpoint()

	inst, err := builder.Build(ctx, domain.BuildRequest{
		Endpoint:   endpoint,
		ChainID:    chainID,
		MockChains: mock,
		OnStatus: func(st domain.Status) {
			fmt.Fprintf(errOut, "… %s\n", st)
		},
	})
	if err != nil {
		return fmt.Errorf("build failed [%s]: %w", domain.Code(err), err)
	}

	summary := summarize(inst)
	if jsonOutput {
		return writeJSON(out, summary)
	}

	fmt.Fprintf(out, "Instance: %s\n", summary.Path)
	if summary.ChainID != 0 {
		fmt.Fprintf(out, "Chain ID: %d\n", summary.ChainID)
	}
	if summary.RPCURL != "" {
		fmt.Fprintf(out, "RPC URL:  %s\n", summary.RPCURL)
	}
	if summary.ACLAddress != "" {
		fmt.Fprintf(out, "ACL:      %s\n", summary.ACLAddress)
	}
	if summary.PublicKeyLength > 0 {
		fmt.Fprintf(out, "Public key: %d bytes\n", summary.PublicKeyLength)
	}
	return nil
}
