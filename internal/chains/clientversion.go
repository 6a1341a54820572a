package chains

import (
	"strings"

	"golang.org/x/mod/semver"
)

// DefaultLocalClients lists the web3_clientVersion substrings that identify
// a local FHE test node.
var DefaultLocalClients = []string{"hardhat"}

// ClientVersion is a parsed web3_clientVersion string such as
// "HardhatNetwork/2.22.3/@fhevm/hardhat-plugin/0.1.0".
type ClientVersion struct {
	Raw     string
	Name    string
	Version string // canonical semver ("v2.22.3"), empty when unparseable
}

// ParseClientVersion splits a web3_clientVersion string into name and version.
func ParseClientVersion(raw string) ClientVersion {
	cv := ClientVersion{Raw: raw}
	parts := strings.Split(raw, "/")
	cv.Name = parts[0]
	if len(parts) > 1 {
		v := parts[1]
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if semver.IsValid(v) {
			cv.Version = semver.Canonical(v)
		}
	}
	return cv
}

// IsLocalTestClient reports whether the version string identifies one of the
// given local test node implementations (case-insensitive substring match).
func IsLocalTestClient(raw string, clients []string) bool {
	lower := strings.ToLower(raw)
	for _, c := range clients {
		if c != "" && strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}
