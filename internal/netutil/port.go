package netutil

import (
	"fmt"
	"log/slog"
	"net"
)

// SelectBindAddr returns the first listenable address from the preferred
// address followed by the candidate list. Without autoFallback a busy
// preferred address is an error rather than a reason to move on; OBS browser
// sources point at a fixed port, so silently drifting to another one would
// break every overlay URL.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		if addrAvailable(preferred) {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("bind address %s is already in use", preferred)
		}
		slog.Warn("preferred bind address busy, trying candidates", "preferred", preferred)
	}

	for _, addr := range candidates {
		if addrAvailable(addr) {
			return addr, nil
		}
	}
	return "", fmt.Errorf("no listenable address among %q and %d candidate(s)", preferred, len(candidates))
}

// addrAvailable probes an address with a short-lived listener.
func addrAvailable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
