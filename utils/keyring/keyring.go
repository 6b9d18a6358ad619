// Package keyring picks the HCA decryption key for a file from configured rules.
package keyring

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"haruki-hca/config"
)

// Key is a key code and its optional AWB subkey.
type Key struct {
	Code   uint64
	Subkey uint64
}

type rule struct {
	pattern *regexp2.Regexp
	key     Key
}

// Keyring resolves keys by matching file base names against rules in order.
type Keyring struct {
	rules    []rule
	fallback Key
	usmKey   uint64
}

// ParseKey parses a decimal, 0x-prefixed hex or 0-prefixed octal key. An empty string is 0.
func ParseKey(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return v, nil
}

func parsePair(code, subkey string) (Key, error) {
	c, err := ParseKey(code)
	if err != nil {
		return Key{}, err
	}
	s, err := ParseKey(subkey)
	if err != nil {
		return Key{}, err
	}
	return Key{Code: c, Subkey: s}, nil
}

// New compiles the rules of cfg. Patterns use .NET regular expression syntax and
// are matched case-insensitively against the file base name.
func New(cfg config.DecodeConfig) (*Keyring, error) {
	fallback, err := parsePair(cfg.DefaultKey, cfg.DefaultSubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse default key: %w", err)
	}

	usmKey, err := ParseKey(cfg.USMKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse USM key: %w", err)
	}

	k := &Keyring{fallback: fallback, usmKey: usmKey}
	for i, r := range cfg.KeyRules {
		re, err := regexp2.Compile(r.Pattern, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("key rule %d: invalid pattern %q: %w", i, r.Pattern, err)
		}
		key, err := parsePair(r.Key, r.Subkey)
		if err != nil {
			return nil, fmt.Errorf("key rule %d: %w", i, err)
		}
		k.rules = append(k.rules, rule{pattern: re, key: key})
	}
	return k, nil
}

// Resolve returns the key of the first rule matching name, or the default key.
// matched reports whether a rule matched.
func (k *Keyring) Resolve(name string) (key Key, matched bool) {
	base := filepath.Base(name)
	for _, r := range k.rules {
		ok, err := r.pattern.MatchString(base)
		if err == nil && ok {
			return r.key, true
		}
	}
	return k.fallback, false
}

// USMKey returns the movie key that unmasks USM audio, 0 when none is configured.
func (k *Keyring) USMKey() uint64 {
	return k.usmKey
}

// Candidates returns every distinct key code known to the keyring, default first.
func (k *Keyring) Candidates() []uint64 {
	seen := map[uint64]bool{}
	var out []uint64
	add := func(c uint64) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	add(k.fallback.Code)
	for _, r := range k.rules {
		add(r.key.Code)
	}
	return out
}
