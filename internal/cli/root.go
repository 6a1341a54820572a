package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/validation"
)

var (
	cfgFile string
	server  string
	rpcURL  string
	verbose bool
)

// Execute runs the CLI
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd(version).ExecuteContext(ctx)
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fhevmkit",
		Short: "FHEVM instance toolkit",
		Long: `fhevmkit resolves chain endpoints and builds FHEVM instances, either
against a local FHE test node or through the relayer SDK.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: fhevmkit.toml or fhevm.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "fhevmkit-server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc-url", "", "chain RPC URL (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	// Add subcommands
	rootCmd.AddCommand(createInfoCmd(version))
	rootCmd.AddCommand(createResolveCmd())
	rootCmd.AddCommand(createProbeCmd())
	rootCmd.AddCommand(createBuildCmd())
	rootCmd.AddCommand(createWatchCmd())
	rootCmd.AddCommand(createCacheCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createRefreshCmd())
	rootCmd.AddCommand(createBindCmd())

	return rootCmd
}

// getServer returns the server URL from flag, env, project config, or global config
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("FHEVMKIT_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Global config file (YAML)
	if global := loadGlobalConfigSilent(); global != nil && global.Server != "" {
		return global.Server
	}

	// 5. Default
	return "http://localhost:8080"
}

// getRPCURL returns the chain RPC URL from flag, env, or project config
func getRPCURL() string {
	if rpcURL != "" {
		return rpcURL
	}
	if env := os.Getenv("RPC_URL"); env != "" {
		return env
	}
	if config := loadProjectConfigSilent(); config != nil && config.RPCURL != "" {
		return config.RPCURL
	}
	return chains.DefaultLocalRPCURL
}

// getMockChains merges the project [mock_chains] table with MOCK_CHAINS.
// Environment entries win.
func getMockChains() (map[int64]string, error) {
	result := make(map[int64]string)

	if config := loadProjectConfigSilent(); config != nil {
		for idStr, url := range config.MockChains {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid chain id %q in [mock_chains]: %w", idStr, err)
			}
			result[id] = url
		}
	}

	fromEnv, err := chains.ParseMockChains(os.Getenv("MOCK_CHAINS"))
	if err != nil {
		return nil, fmt.Errorf("parsing MOCK_CHAINS: %w", err)
	}
	for id, url := range fromEnv {
		result[id] = url
	}

	if err := validation.ValidateMockChains(result); err != nil {
		return nil, err
	}
	return result, nil
}

// getLocalClients returns the project's local client list, falling back to
// LOCAL_CLIENTS
func getLocalClients(cfg *config.Config) []string {
	if config := loadProjectConfigSilent(); config != nil && len(config.LocalClients) > 0 {
		return config.LocalClients
	}
	return cfg.Chain.LocalClients
}

// newLogger returns a stderr logger. Commands print their results on stdout,
// so logs stay quiet unless --verbose is set.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
