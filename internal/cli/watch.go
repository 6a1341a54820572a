package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/binding"
	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/instances/domain"
	"github.com/pendergraft/fhevmkit/internal/validation"
)

func createWatchCmd() *cobra.Command {
	var flags buildFlags
	var every time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep an instance bound to the endpoint",
		Long: `Bind an instance to the endpoint and print every state change until
interrupted. With --refresh-every the instance is rebuilt periodically, for
example to pick up a restarted local node.

EXAMPLES:
  fhevmkit watch
  fhevmkit watch --refresh-every 30s
  fhevmkit watch --once   # exit after the first ready or error state
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, cmd.OutOrStdout(), flags, every, once)
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&every, "refresh-every", 0, "rebuild periodically (0 = never)")
	cmd.Flags().BoolVar(&once, "once", false, "exit after the first ready or error state")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, out io.Writer, flags buildFlags, every time.Duration, once bool) error {
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

	tty := isTerminal(out)
	b := binding.New(builder, binding.Options{
		MockChains: mock,
		OnBuildStatus: func(st domain.Status) {
			logger.Info("build status", "status", st)
		},
		Logger: logger,
	})
	defer func() {
		b.Close()
		b.Wait()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	states := b.Watch(ctx)
	b.Update(binding.Config{Endpoint: endpoint, ChainID: chainID, Enabled: true})

	if every > 0 {
		go refreshLoop(ctx, b, every)
	}

	for st := range states {
		printState(out, endpoint, st, tty)
		if once && (st.Status == binding.StatusReady || st.Status == binding.StatusError) {
			if st.Err != nil {
				return fmt.Errorf("build failed [%s]: %w", domain.Code(st.Err), st.Err)
			}
			return nil
		}
	}
	return nil
}

func refreshLoop(ctx context.Context, b *binding.Binding, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Refresh()
		case <-ctx.Done():
			return
		}
	}
}

func printState(out io.Writer, endpoint chains.Endpoint, st binding.State, tty bool) {
	line := fmt.Sprintf("%s  %s  %s", time.Now().Format(time.TimeOnly), endpoint, statusLabel(string(st.Status), tty))
	switch {
	case st.Instance != nil:
		s := summarize(st.Instance)
		line += fmt.Sprintf("  path=%s", s.Path)
		if s.ChainID != 0 {
			line += fmt.Sprintf(" chainId=%d", s.ChainID)
		}
	case st.Err != nil:
		line += fmt.Sprintf("  [%s] %v", domain.Code(st.Err), st.Err)
	}
	fmt.Fprintln(out, line)
}
