package genesis

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// ErrInvalidSpec wraps every genesis validation failure.
var ErrInvalidSpec = errors.New("genesis: invalid spec")

// Spec is the YAML genesis document.
type Spec struct {
	// GeneratorPublicKey signs the genesis block (hex).
	GeneratorPublicKey string         `yaml:"generatorPublicKey"`
	Accounts           []AccountSpec  `yaml:"accounts"`
	Delegates          []DelegateSpec `yaml:"delegates"`
	Votes              []VoteSpec     `yaml:"votes"`

	generator []byte
}

// AccountSpec funds one account. Address may be omitted when the public key
// is given.
type AccountSpec struct {
	Address   string `yaml:"address"`
	PublicKey string `yaml:"publicKey"`
	Balance   int64  `yaml:"balance"`
}

// DelegateSpec registers a delegate.
type DelegateSpec struct {
	Username  string `yaml:"username"`
	PublicKey string `yaml:"publicKey"`
}

// VoteSpec records the delegates an account votes for.
type VoteSpec struct {
	PublicKey string   `yaml:"publicKey"`
	Delegates []string `yaml:"delegates"`
}

// Load reads and validates a genesis file. Unknown keys are rejected.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// Parse decodes and validates a genesis document.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks keys, addresses and cross references.
func (s *Spec) Validate() error {
	generator, err := decodeKey(s.GeneratorPublicKey)
	if err != nil {
		return fmt.Errorf("%w: generatorPublicKey: %v", ErrInvalidSpec, err)
	}
	s.generator = generator

	addresses := make(map[string]struct{}, len(s.Accounts))
	var total int64
	for i := range s.Accounts {
		acc := &s.Accounts[i]
		if acc.Balance < 0 {
			return fmt.Errorf("%w: accounts[%d]: negative balance", ErrInvalidSpec, i)
		}
		if total > 1<<63-1-acc.Balance {
			return fmt.Errorf("%w: accounts[%d]: total supply overflows", ErrInvalidSpec, i)
		}
		total += acc.Balance
		if acc.PublicKey != "" {
			key, err := decodeKey(acc.PublicKey)
			if err != nil {
				return fmt.Errorf("%w: accounts[%d]: %v", ErrInvalidSpec, i, err)
			}
			derived := types.AddressFromPublicKey(key)
			if acc.Address == "" {
				acc.Address = derived
			}
			if !strings.EqualFold(acc.Address, derived) {
				return fmt.Errorf("%w: accounts[%d]: address %s does not match public key", ErrInvalidSpec, i, acc.Address)
			}
		}
		if !types.IsAddress(acc.Address) {
			return fmt.Errorf("%w: accounts[%d]: invalid address %q", ErrInvalidSpec, i, acc.Address)
		}
		acc.Address = strings.ToUpper(acc.Address)
		if _, dup := addresses[acc.Address]; dup {
			return fmt.Errorf("%w: accounts[%d]: duplicate address %s", ErrInvalidSpec, i, acc.Address)
		}
		addresses[acc.Address] = struct{}{}
	}

	delegates := make(map[string]struct{}, len(s.Delegates))
	usernames := make(map[string]struct{}, len(s.Delegates))
	for i, d := range s.Delegates {
		key, err := decodeKey(d.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: delegates[%d]: %v", ErrInvalidSpec, i, err)
		}
		name := strings.ToLower(strings.TrimSpace(d.Username))
		if name == "" || types.IsAddress(name) {
			return fmt.Errorf("%w: delegates[%d]: invalid username %q", ErrInvalidSpec, i, d.Username)
		}
		if _, dup := usernames[name]; dup {
			return fmt.Errorf("%w: delegates[%d]: duplicate username %s", ErrInvalidSpec, i, name)
		}
		usernames[name] = struct{}{}
		encoded := hex.EncodeToString(key)
		if _, dup := delegates[encoded]; dup {
			return fmt.Errorf("%w: delegates[%d]: duplicate public key", ErrInvalidSpec, i)
		}
		delegates[encoded] = struct{}{}
		s.Delegates[i].Username = name
		s.Delegates[i].PublicKey = encoded
	}

	voters := make(map[string]struct{}, len(s.Votes))
	for i, v := range s.Votes {
		key, err := decodeKey(v.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: votes[%d]: %v", ErrInvalidSpec, i, err)
		}
		encoded := hex.EncodeToString(key)
		if _, dup := voters[encoded]; dup {
			return fmt.Errorf("%w: votes[%d]: duplicate voter", ErrInvalidSpec, i)
		}
		voters[encoded] = struct{}{}
		s.Votes[i].PublicKey = encoded
		seen := make(map[string]struct{}, len(v.Delegates))
		for j, target := range v.Delegates {
			target = strings.ToLower(strings.TrimPrefix(target, "0x"))
			if _, ok := delegates[target]; !ok {
				return fmt.Errorf("%w: votes[%d]: %s is not a registered delegate", ErrInvalidSpec, i, target)
			}
			if _, dup := seen[target]; dup {
				return fmt.Errorf("%w: votes[%d]: duplicate vote for %s", ErrInvalidSpec, i, target)
			}
			seen[target] = struct{}{}
			v.Delegates[j] = target
		}
	}
	return nil
}

func decodeKey(value string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %v", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("public key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
