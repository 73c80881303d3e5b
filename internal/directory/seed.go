package directory

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// Seed is the initial directory content.
type Seed struct {
	Accounts []Account           `yaml:"accounts"`
	Messages map[string][]Message `yaml:"messages"`
}

// DefaultSeed returns the built-in fixture.
func DefaultSeed() (Seed, error) {
	return ParseSeed(seedYAML)
}

// ParseSeed decodes and validates a YAML fixture.
func ParseSeed(b []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Seed{}, fmt.Errorf("decode directory seed: %w", err)
	}

	known := make(map[string]bool, len(s.Accounts))
	for i, a := range s.Accounts {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return Seed{}, fmt.Errorf("seed account %d: id is required", i)
		}
		if known[id] {
			return Seed{}, fmt.Errorf("seed account %q: duplicate id", id)
		}
		if a.Role != RoleShipper && a.Role != RoleVendor {
			return Seed{}, fmt.Errorf("seed account %q: unknown role %q", id, a.Role)
		}
		known[id] = true
		s.Accounts[i].ID = id
	}

	for accountID, msgs := range s.Messages {
		if !known[accountID] {
			return Seed{}, fmt.Errorf("seed messages for unknown account %q", accountID)
		}
		for i := range msgs {
			if msgs[i].From != SenderRep && msgs[i].From != SenderUser {
				return Seed{}, fmt.Errorf("seed message %s/%s: unknown sender %q", accountID, msgs[i].ID, msgs[i].From)
			}
			msgs[i].AccountID = accountID
		}
	}
	if s.Messages == nil {
		s.Messages = map[string][]Message{}
	}
	return s, nil
}
