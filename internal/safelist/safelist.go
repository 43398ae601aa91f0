// Package safelist decides whether automated containment must be bypassed
// for protected entities: internal admin accounts, monitoring infrastructure
// and similar targets that must never be blocked or isolated automatically.
package safelist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SafeList is a read-only membership test over protected IPs and user ids.
// It is safe for concurrent use once constructed.
type SafeList struct {
	ips     map[string]bool
	userIDs map[string]bool
}

// fileFormat is the YAML shape of an external safe-list file.
type fileFormat struct {
	IPs     []string `yaml:"ips"`
	UserIDs []string `yaml:"user_ids"`
}

// New builds a SafeList from explicit entries.
func New(ips, userIDs []string) *SafeList {
	s := &SafeList{
		ips:     make(map[string]bool, len(ips)),
		userIDs: make(map[string]bool, len(userIDs)),
	}
	for _, ip := range ips {
		s.ips[ip] = true
	}
	for _, id := range userIDs {
		s.userIDs[id] = true
	}
	return s
}

// Load reads a YAML safe-list file and merges it with the given inline
// entries. An empty path yields a SafeList from the inline entries alone.
func Load(path string, ips, userIDs []string) (*SafeList, error) {
	if path == "" {
		return New(ips, userIDs), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read safe-list file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse safe-list file: %w", err)
	}

	return New(append(f.IPs, ips...), append(f.UserIDs, userIDs...)), nil
}

// IsSafeHaven reports whether the IP or the user id belongs to a protected
// entity. Absent inputs (empty strings) simply fail the match.
func (s *SafeList) IsSafeHaven(ip, userID string) bool {
	if ip != "" && s.ips[ip] {
		return true
	}
	if userID != "" && s.userIDs[userID] {
		return true
	}
	return false
}
