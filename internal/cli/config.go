package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"fhevmkit.toml", "fhevm.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server       string            `toml:"server"`
	RPCURL       string            `toml:"rpc_url,omitempty"`
	ChainID      int64             `toml:"chain_id,omitempty"`
	LocalClients []string          `toml:"local_clients,omitempty"`
	MockChains   map[string]string `toml:"mock_chains,omitempty"`
}

// GlobalConfig is the user-level configuration (stored in ~/.fhevmkit/config.yaml)
type GlobalConfig struct {
	Server string `yaml:"server"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var chainRPC string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create an fhevmkit.toml configuration file in the current directory.

This file stores project-specific settings like the chain RPC URL, the
server URL and the chains that should be treated as local test chains.

EXAMPLES:
  # Create config for a local Hardhat node
  fhevmkit config init

  # Create config for a devnet
  fhevmkit config init --rpc-url https://devnet.example.com

  # Overwrite existing config
  fhevmkit config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), serverURL, chainRPC, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8080", "fhevmkit-server URL")
	cmd.Flags().StringVar(&chainRPC, "chain-rpc", "http://localhost:8545", "chain RPC URL")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows the local project config (fhevmkit.toml) and the global config from
~/.fhevmkit/config.yaml, followed by the effective values.

EXAMPLES:
  fhevmkit config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(out io.Writer, serverURL, chainRPC string, force bool) error {
	configPath := "fhevmkit.toml"

	// Check if any config file already exists
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	content := fmt.Sprintf(`# fhevmkit project configuration

server = "%s"
rpc_url = "%s"

# web3_clientVersion substrings that identify a local FHE test node
local_clients = ["hardhat"]

# Chains treated as local test chains, by chain id.
# 31337 = http://localhost:8545 is always included.
[mock_chains]
# 1337 = "http://localhost:8546"
`, serverURL, chainRPC)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Server:  %s\n", serverURL)
	fmt.Fprintf(out, "  RPC URL: %s\n", chainRPC)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Run 'fhevmkit probe' to check the node")
	fmt.Fprintln(out, "  2. Run 'fhevmkit build' to build an instance")

	return nil
}

func runConfigShow(out io.Writer) error {
	fmt.Fprintln(out, "Configuration sources (in order of precedence):")
	fmt.Fprintln(out)

	// 1. Command line flags
	fmt.Fprintln(out, "1. Command line flags")
	fmt.Fprintln(out, "   --server, --rpc-url, --config")
	fmt.Fprintln(out)

	// 2. Environment variables
	fmt.Fprintln(out, "2. Environment variables")
	for _, name := range []string{"FHEVMKIT_SERVER", "RPC_URL", "MOCK_CHAINS", "LOCAL_CLIENTS", "KEY_CACHE_TYPE"} {
		if v := os.Getenv(name); v != "" {
			fmt.Fprintf(out, "   %s=%s\n", name, v)
		} else {
			fmt.Fprintf(out, "   %s=(not set)\n", name)
		}
	}
	fmt.Fprintln(out)

	// 3. Local project config
	fmt.Fprintln(out, "3. Local project config (fhevmkit.toml or fhevm.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(out, "   (not found)")
		} else {
			fmt.Fprintf(out, "   Error: %v\n", err)
		}
	} else {
		fmt.Fprintf(out, "   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Fprintf(out, "   server: %s\n", projectConfig.Server)
		}
		if projectConfig.RPCURL != "" {
			fmt.Fprintf(out, "   rpc_url: %s\n", projectConfig.RPCURL)
		}
		if projectConfig.ChainID != 0 {
			fmt.Fprintf(out, "   chain_id: %d\n", projectConfig.ChainID)
		}
		if len(projectConfig.LocalClients) > 0 {
			fmt.Fprintf(out, "   local_clients: %v\n", projectConfig.LocalClients)
		}
		if len(projectConfig.MockChains) > 0 {
			ids := make([]string, 0, len(projectConfig.MockChains))
			for id := range projectConfig.MockChains {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			fmt.Fprintln(out, "   mock_chains:")
			for _, id := range ids {
				fmt.Fprintf(out, "     %s = %s\n", id, projectConfig.MockChains[id])
			}
		}
	}
	fmt.Fprintln(out)

	// 4. Global config
	fmt.Fprintln(out, "4. Global config (~/.fhevmkit/config.yaml)")
	global, err := loadGlobalConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(out, "   (not found)")
		} else {
			fmt.Fprintf(out, "   Error: %v\n", err)
		}
	} else if global.Server != "" {
		fmt.Fprintf(out, "   server: %s\n", global.Server)
	}
	fmt.Fprintln(out)

	// Effective config
	fmt.Fprintln(out, "Effective configuration:")
	fmt.Fprintf(out, "   Server:  %s\n", getServer())
	fmt.Fprintf(out, "   RPC URL: %s\n", getRPCURL())

	return nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	// If --config flag was provided, use that directly
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	// Search for config files in order
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but warns about parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}

func globalConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fhevmkit"
	}
	return filepath.Join(home, ".fhevmkit")
}

func loadGlobalConfig() (*GlobalConfig, error) {
	data, err := os.ReadFile(filepath.Join(globalConfigDir(), "config.yaml"))
	if err != nil {
		return nil, err
	}

	var config GlobalConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &config, nil
}

func loadGlobalConfigSilent() *GlobalConfig {
	config, err := loadGlobalConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load global config: %v\n", err)
		}
		return nil
	}
	return config
}
