// Package peerset is the node registry: an idempotent set of host:port
// peer addresses, tolerant of malformed input on read paths and of
// absence on removal.
package peerset

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidAddress is returned by Register when address has neither a
// network authority nor a bare host:port path.
var ErrInvalidAddress = errors.New("peerset: invalid address")

// Set is a thread-safe, unordered set of host:port strings.
type Set struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

// New returns an empty peer set.
func New() *Set {
	return &Set{members: make(map[string]struct{})}
}

// Register parses address (accepting "http://h:p", "h:p", or "h:p/…") and
// adds the resulting host:port to the set. Registration is idempotent.
func Register(s *Set, address string) error {
	hostPort, err := ParseHostPort(address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[hostPort] = struct{}{}
	return nil
}

// Remove discards address from the set, tolerant of malformed input and of
// the address being absent.
func Remove(s *Set, address string) {
	hostPort, err := ParseHostPort(address)
	if err != nil {
		hostPort = address
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, hostPort)
}

// List returns a snapshot of the set's members.
func List(s *Set) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	return out
}

// Len returns the number of registered peers.
func Len(s *Set) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// ParseHostPort extracts the host:port substring from address, accepting
// both scheme-qualified URLs ("http://h:p/…") and bare host:port strings
// ("h:p", "h:p/…"). net/url's scheme detection is ambiguous for bare
// "host:port" strings (a host that looks like a URL scheme swallows the
// port as "opaque" data), so the scheme is stripped by hand first and the
// remainder is parsed as an authority-less path.
func ParseHostPort(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	rest := address
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+len("://"):]
	}
	rest = strings.TrimPrefix(rest, "//")
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	return rest, nil
}
