// SPDX-License-Identifier: Apache-2.0

package pathmerge

import (
	"fmt"
	"slices"
	"strings"
)

// Strategy specifies how two nodes at the same path are combined.
type Strategy int

const (
	// StrategyDefault means "not set". In [Config] it selects the built-in
	// default for objects ([StrategyMerge]) or arrays ([StrategyAppend]); in a
	// [Rule] it means [StrategyMerge].
	StrategyDefault Strategy = iota
	// StrategyReplace makes the overlay win wholesale.
	StrategyReplace
	// StrategyAppend concatenates base and overlay elements. Arrays only.
	StrategyAppend
	// StrategyMerge reconciles objects field by field and arrays by key field.
	StrategyMerge
)

func (s Strategy) String() string {
	switch s {
	case StrategyDefault:
		return "DEFAULT"
	case StrategyReplace:
		return "REPLACE"
	case StrategyAppend:
		return "APPEND"
	case StrategyMerge:
		return "MERGE"
	default:
		return fmt.Sprintf("Strategy(%d)", s)
	}
}

func (s Strategy) valid() bool {
	return s >= StrategyDefault && s <= StrategyMerge
}

// ParseStrategy converts a strategy name to a [Strategy]. Matching is
// case-insensitive; the empty string yields [StrategyDefault].
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "DEFAULT":
		return StrategyDefault, nil
	case "REPLACE":
		return StrategyReplace, nil
	case "APPEND":
		return StrategyAppend, nil
	case "MERGE":
		return StrategyMerge, nil
	default:
		return StrategyDefault, fmt.Errorf("%w: unknown strategy %q (valid: replace, append, merge)",
			ErrInvalidConfig, name)
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Rule overrides the default strategy at exactly one path.
type Rule struct {
	// Path is the dot-joined location the rule applies to. The root is "".
	Path string `json:"path" yaml:"path" toml:"path"`
	// KeyField identifies array elements for keyed merging. It is a
	// dot-separated path into each element; segments containing dots are
	// written in double quotes, e.g. `metadata."app.kubernetes.io/name"`.
	KeyField string `json:"keyField,omitempty" yaml:"keyField,omitempty" toml:"keyField,omitempty"`
	// Strategy applied at Path. [StrategyDefault] means [StrategyMerge].
	Strategy Strategy `json:"strategy" yaml:"strategy" toml:"strategy"`
}

// ParseRule parses the compact PATH:STRATEGY[:KEYFIELD] form of a rule used
// on command lines and in annotations. An empty PATH is the root. Everything
// after the second colon is the key field, so key fields may contain colons.
func ParseRule(s string) (Rule, error) {
	path, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Rule{}, fmt.Errorf("%w: rule %q: expected PATH:STRATEGY[:KEYFIELD]", ErrInvalidConfig, s)
	}
	name, keyField, _ := strings.Cut(rest, ":")
	strategy, err := ParseStrategy(name)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", s, err)
	}
	if strategy == StrategyDefault {
		strategy = StrategyMerge
	}
	return Rule{Path: path, KeyField: keyField, Strategy: strategy}, nil
}

func (r Rule) strategy() Strategy {
	if r.Strategy == StrategyDefault {
		return StrategyMerge
	}
	return r.Strategy
}

// Config is the merge policy.
//
// The zero value is valid and provides the defaults:
//   - objects are merged ([StrategyMerge])
//   - arrays are appended ([StrategyAppend])
//   - no rules
//   - no pretty printing
type Config struct {
	// PrettyPrint is consumed by codecs when encoding the result.
	PrettyPrint bool `json:"prettyPrint" yaml:"prettyPrint" toml:"prettyPrint"`
	// ObjectStrategy is used for objects without a rule. It also decides, for
	// each field of a merged object, whether a field missing from the overlay
	// is deleted ([StrategyReplace]) or kept.
	ObjectStrategy Strategy `json:"objectStrategy" yaml:"objectStrategy" toml:"objectStrategy"`
	// ArrayStrategy is used for arrays without a rule.
	ArrayStrategy Strategy `json:"arrayStrategy" yaml:"arrayStrategy" toml:"arrayStrategy"`
	// Rules are matched by exact path equality. The first rule for a path wins.
	Rules []Rule `json:"rules" yaml:"rules" toml:"rules"`
}

// AddRule appends a rule for path. The strategy defaults to [StrategyMerge].
// It returns c to allow chaining while a configuration is being built.
func (c *Config) AddRule(path, keyField string, strategy ...Strategy) *Config {
	s := StrategyMerge
	if len(strategy) > 0 {
		s = strategy[0]
	}
	c.Rules = append(c.Rules, Rule{Path: path, KeyField: keyField, Strategy: s})
	return c
}

// FindRule returns the first rule whose path equals path.
func (c Config) FindRule(path string) (Rule, bool) {
	for _, r := range c.Rules {
		if r.Path == path {
			return r, true
		}
	}
	return Rule{}, false
}

func (c Config) objectStrategy() Strategy {
	if c.ObjectStrategy == StrategyDefault {
		return StrategyMerge
	}
	return c.ObjectStrategy
}

func (c Config) arrayStrategy() Strategy {
	if c.ArrayStrategy == StrategyDefault {
		return StrategyAppend
	}
	return c.ArrayStrategy
}

// Validate reports strategy values outside the known set.
func (c Config) Validate() error {
	if !c.ObjectStrategy.valid() {
		return fmt.Errorf("%w: objectStrategy %s", ErrInvalidConfig, c.ObjectStrategy)
	}
	if !c.ArrayStrategy.valid() {
		return fmt.Errorf("%w: arrayStrategy %s", ErrInvalidConfig, c.ArrayStrategy)
	}
	for i, r := range c.Rules {
		if !r.Strategy.valid() {
			return fmt.Errorf("%w: rules[%d] (path %q): strategy %s", ErrInvalidConfig, i, r.Path, r.Strategy)
		}
	}
	return nil
}

// Clone returns a copy of c that does not share its rule slice.
func (c Config) Clone() Config {
	c.Rules = slices.Clone(c.Rules)
	return c
}

// Node serializes c into the tree model, in the shape [DecodeConfig] reads.
func (c Config) Node() *Node {
	obj := NewObject()
	obj.Set("prettyPrint", NewScalar(c.PrettyPrint))
	obj.Set("arrayStrategy", NewScalar(c.arrayStrategy().String()))
	obj.Set("objectStrategy", NewScalar(c.objectStrategy().String()))
	rules := NewArray()
	for _, r := range c.Rules {
		rule := NewObject()
		rule.Set("path", NewScalar(r.Path))
		if r.KeyField != "" {
			rule.Set("keyField", NewScalar(r.KeyField))
		}
		rule.Set("strategy", NewScalar(r.strategy().String()))
		rules.Append(rule)
	}
	obj.Set("rules", rules)
	return obj
}

// DecodeConfig reads a merge configuration from a parsed document.
//
// Recognized fields are prettyPrint, arrayStrategy, objectStrategy and rules;
// every rule is an object with path, keyField and strategy. Unknown fields are
// ignored. Absent or null fields keep their defaults.
func DecodeConfig(n *Node) (Config, error) {
	var cfg Config
	if n.IsNull() {
		return cfg, nil
	}
	if !n.IsObject() {
		return cfg, fmt.Errorf("%w: config must be an object, got %s", ErrInvalidConfig, n.Kind())
	}

	if v, ok := n.Get("prettyPrint"); ok && !v.IsNull() {
		b, ok := v.Value().(bool)
		if !ok {
			return cfg, fmt.Errorf("%w: prettyPrint must be a boolean, got %s", ErrInvalidConfig, v)
		}
		cfg.PrettyPrint = b
	}

	var err error
	if cfg.ArrayStrategy, err = decodeStrategy(n, "arrayStrategy"); err != nil {
		return cfg, err
	}
	if cfg.ObjectStrategy, err = decodeStrategy(n, "objectStrategy"); err != nil {
		return cfg, err
	}

	rules, ok := n.Get("rules")
	if !ok || rules.IsNull() {
		return cfg, nil
	}
	if !rules.IsArray() {
		return cfg, fmt.Errorf("%w: rules must be an array, got %s", ErrInvalidConfig, rules.Kind())
	}
	for i, item := range rules.Items() {
		rule, err := decodeRule(item)
		if err != nil {
			return cfg, fmt.Errorf("rules[%d]: %w", i, err)
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	return cfg, nil
}

func decodeRule(n *Node) (Rule, error) {
	var rule Rule
	if !n.IsObject() {
		return rule, fmt.Errorf("%w: rule must be an object, got %s", ErrInvalidConfig, n.Kind())
	}
	var err error
	if rule.Path, err = decodeString(n, "path"); err != nil {
		return rule, err
	}
	if rule.KeyField, err = decodeString(n, "keyField"); err != nil {
		return rule, err
	}
	if rule.Strategy, err = decodeStrategy(n, "strategy"); err != nil {
		return rule, err
	}
	return rule, nil
}

func decodeString(n *Node, key string) (string, error) {
	v, ok := n.Get(key)
	if !ok || v.IsNull() {
		return "", nil
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %s", ErrInvalidConfig, key, v)
	}
	return s, nil
}

func decodeStrategy(n *Node, key string) (Strategy, error) {
	name, err := decodeString(n, key)
	if err != nil {
		return StrategyDefault, err
	}
	s, err := ParseStrategy(name)
	if err != nil {
		return StrategyDefault, fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}

// LoadConfig decodes a configuration document with c and reads it with
// [DecodeConfig].
func LoadConfig(c Codec, data []byte) (Config, error) {
	n, err := c.Decode(data)
	if err != nil {
		return Config{}, &DecodeError{Err: err, Doc: DocConfig}
	}
	return DecodeConfig(n)
}
