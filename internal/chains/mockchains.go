package chains

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultLocalChainID is the chain id Hardhat and Anvil nodes use by default.
const DefaultLocalChainID int64 = 31337

// DefaultLocalRPCURL is where a local test node listens by default.
const DefaultLocalRPCURL = "http://localhost:8545"

// DefaultMockChains returns the built-in local test chain table.
func DefaultMockChains() map[int64]string {
	return map[int64]string{DefaultLocalChainID: DefaultLocalRPCURL}
}

// MergeMockChains returns the union of the built-in table and the caller's
// table. Caller entries win on key collision.
func MergeMockChains(custom map[int64]string) map[int64]string {
	merged := DefaultMockChains()
	for id, url := range custom {
		merged[id] = url
	}
	return merged
}

// ParseMockChains parses "31337=http://localhost:8545,1337=http://..." into a
// table.
func ParseMockChains(s string) (map[int64]string, error) {
	result := make(map[int64]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, url, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid mock chain entry %q: expected <chainId>=<url>", part)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id in %q: %w", part, err)
		}
		result[id] = strings.TrimSpace(url)
	}
	return result, nil
}

// FormatMockChains is the inverse of ParseMockChains, with ids sorted.
func FormatMockChains(m map[int64]string) string {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d=%s", id, m[id]))
	}
	return strings.Join(parts, ",")
}
