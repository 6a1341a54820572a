package cli

import (
	"encoding/json"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/pendergraft/fhevmkit/internal/fhe"
	"github.com/pendergraft/fhevmkit/internal/instances/domain"
	"github.com/pendergraft/fhevmkit/internal/localtest"
)

// isTerminal reports whether out is an interactive terminal
func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// statusLabel decorates a lifecycle status for terminals and leaves it plain
// for pipes
func statusLabel(status string, tty bool) string {
	if !tty {
		return status
	}
	switch status {
	case "ready":
		return "✅ ready"
	case "error":
		return "❌ error"
	case "loading":
		return "⏳ loading"
	case "idle":
		return "⏸  idle"
	default:
		return "… " + status
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// instanceSummary is the printable view of a built instance
type instanceSummary struct {
	Path            string `json:"path"`
	ChainID         int64  `json:"chainId,omitempty"`
	RPCURL          string `json:"rpcUrl,omitempty"`
	ACLAddress      string `json:"aclAddress,omitempty"`
	PublicKeyLength int    `json:"publicKeyLength"`
}

func summarize(inst fhe.Instance) instanceSummary {
	s := instanceSummary{
		Path:            string(domain.PathOf(inst)),
		PublicKeyLength: len(inst.PublicKey()),
	}
	if local, ok := inst.(*localtest.Instance); ok {
		s.ChainID = local.ChainID()
		s.RPCURL = local.RPCURL()
		s.ACLAddress = local.Metadata().ACLAddress
	}
	return s
}
