// SPDX-License-Identifier: Apache-2.0

// Package pathmerge merges two document trees under per-path strategies.
//
// A base document is layered with an overlay document. Every location in the
// tree is identified by a dot-joined path ("" for the root, "spec.containers"
// for a nested field). A [Config] supplies default strategies for objects and
// arrays and a list of [Rule] values that override the default at exact paths.
// Arrays can be reconciled element by element using a key field.
//
// The engine works on [Node] trees and never performs I/O. Format adapters
// implementing [Codec] convert between bytes and trees; see the codec
// subpackage for JSON, YAML and TOML.
package pathmerge

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple error checking with [errors.Is].
// For detailed error information, use [errors.As] with the typed errors below.
var (
	// ErrStrategy indicates a strategy cannot be applied where it was configured.
	ErrStrategy = errors.New("strategy error")
	// ErrInvalidConfig indicates an invalid merge configuration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrDecode indicates a document could not be decoded or encoded by a codec.
	ErrDecode = errors.New("decode error")
)

// StrategyReason tells why a [StrategyError] was raised.
type StrategyReason int

const (
	// ReasonInvalidObjectStrategy means an object was to be merged with a
	// strategy other than REPLACE or MERGE.
	ReasonInvalidObjectStrategy StrategyReason = iota
	// ReasonMissingRule means an array was to be merged with MERGE but no rule
	// exists at its path.
	ReasonMissingRule
	// ReasonMissingKeyField means the rule for a MERGE array has no key field.
	ReasonMissingKeyField
	// ReasonInvalidArrayStrategy means an array was to be merged with a
	// strategy value outside the known set.
	ReasonInvalidArrayStrategy
)

func (r StrategyReason) String() string {
	switch r {
	case ReasonInvalidObjectStrategy:
		return "invalid object strategy"
	case ReasonMissingRule:
		return "missing rule"
	case ReasonMissingKeyField:
		return "missing keyField"
	case ReasonInvalidArrayStrategy:
		return "invalid array strategy"
	default:
		return fmt.Sprintf("StrategyReason(%d)", r)
	}
}

// StrategyError is returned when the configured strategy cannot be applied to
// the nodes found at a path.
type StrategyError struct {
	// Strategy is the offending strategy.
	Strategy Strategy
	// Path is where in the document the strategy was applied. The root is "".
	Path string
	// Reason tells which check failed.
	Reason StrategyReason
}

func (e *StrategyError) Error() string {
	path := e.Path
	if path == "" {
		path = "."
	}
	switch e.Reason {
	case ReasonInvalidObjectStrategy:
		return fmt.Sprintf("invalid strategy '%s' for object merge at %s", e.Strategy, path)
	case ReasonMissingRule:
		return fmt.Sprintf("missing rule for '%s' strategy at %s", e.Strategy, path)
	case ReasonMissingKeyField:
		return fmt.Sprintf("missing keyField for '%s' strategy at %s", e.Strategy, path)
	default:
		return fmt.Sprintf("invalid strategy '%s' for array merge at %s", e.Strategy, path)
	}
}

func (e *StrategyError) Is(target error) bool {
	return target == ErrStrategy
}

// Document positions reported by [DecodeError].
const (
	DocConfig  = -1
	DocBase    = 0
	DocOverlay = 1
	DocResult  = 2
)

// DecodeError is returned when a codec fails to decode an input document or to
// encode the merged result.
type DecodeError struct {
	// Err is the underlying error returned by the codec.
	Err error
	// Doc tells which document failed: [DocBase], [DocOverlay], [DocResult]
	// or [DocConfig].
	Doc int
}

func (e *DecodeError) Error() string {
	switch e.Doc {
	case DocConfig:
		return fmt.Sprintf("cannot decode config document: %v", e.Err)
	case DocBase:
		return fmt.Sprintf("cannot decode base document: %v", e.Err)
	case DocOverlay:
		return fmt.Sprintf("cannot decode overlay document: %v", e.Err)
	case DocResult:
		return fmt.Sprintf("cannot encode merged document: %v", e.Err)
	default:
		return fmt.Sprintf("cannot decode document %d: %v", e.Doc, e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Merger merges trees under a fixed [Config].
//
// A Merger holds no mutable state once created, so it can be reused for any
// number of merges and is safe to use concurrently, provided the caller does
// not modify the input trees while a merge is running.
type Merger struct {
	cfg   Config
	rules map[string]Rule // first rule per path
}

// NewMerger creates a new [Merger] with the given configuration.
// Returns an error if the configuration is invalid.
func NewMerger(cfg Config) (*Merger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()
	rules := make(map[string]Rule, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if _, exists := rules[r.Path]; !exists {
			rules[r.Path] = r
		}
	}
	return &Merger{cfg: cfg, rules: rules}, nil
}

// Config returns the configuration this [Merger] was created with.
func (m *Merger) Config() Config {
	return m.cfg.Clone()
}

// Merge merges overlay onto base with the given configuration.
// See [Merger.Merge] for details.
func Merge(base, overlay *Node, cfg Config) (*Node, error) {
	m, err := NewMerger(cfg)
	if err != nil {
		return nil, err
	}
	return m.Merge(base, overlay)
}

// Merge returns a new tree combining base and overlay. Neither input is
// modified.
//
// Objects are merged field by field and arrays are appended, replaced or
// reconciled by key field, depending on the rule at each path or the
// configured defaults. Where the two trees disagree on the kind of a node, or
// both hold scalars, the overlay wins.
//
// Example:
//
//	var cfg Config
//	cfg.AddRule("items", "id")
//	base, _ := codec.JSON.Decode([]byte(`{"items": [{"id": 1, "v": "a"}, {"id": 2, "v": "b"}]}`))
//	overlay, _ := codec.JSON.Decode([]byte(`{"items": [{"id": 2, "v": "c"}, {"id": 3, "v": "d"}]}`))
//	result, _ := Merge(base, overlay, cfg)
//	// Result: {"items": [{"id": 2, "v": "c"}, {"id": 3, "v": "d"}]}
func (m *Merger) Merge(base, overlay *Node) (*Node, error) {
	return m.mergeNodes("", base, overlay)
}

func (m *Merger) findRule(path string) (Rule, bool) {
	r, ok := m.rules[path]
	return r, ok
}

func childPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func (m *Merger) mergeNodes(path string, base, overlay *Node) (*Node, error) {
	rule, hasRule := m.findRule(path)

	if base.IsObject() && overlay.IsObject() {
		return m.mergeObjects(path, base, overlay, rule, hasRule)
	}
	if base.IsArray() && overlay.IsArray() {
		return m.mergeArrays(path, base, overlay, rule, hasRule)
	}

	// Scalars and mismatched kinds: overlay wins
	if overlay == nil {
		return Null(), nil
	}
	return overlay.DeepCopy(), nil
}

// fieldStrategy resolves the strategy deciding how a single field of a merged
// object is treated: the rule at the field's own path, else the object default.
func (m *Merger) fieldStrategy(path string) Strategy {
	if r, ok := m.findRule(path); ok {
		return r.strategy()
	}
	return m.cfg.objectStrategy()
}

func (m *Merger) mergeObjects(path string, base, overlay *Node, rule Rule, hasRule bool) (*Node, error) {
	strategy := m.cfg.objectStrategy()
	if hasRule {
		strategy = rule.strategy()
	}

	switch strategy {
	case StrategyReplace:
		return overlay.DeepCopy(), nil
	case StrategyMerge:
	default:
		return nil, &StrategyError{Strategy: strategy, Path: path, Reason: ReasonInvalidObjectStrategy}
	}

	result := base.DeepCopy()
	for _, f := range unionKeys(base, overlay) {
		child := childPath(path, f)
		childStrategy := m.fieldStrategy(child)
		baseVal, inBase := base.Get(f)
		overlayVal, inOverlay := overlay.Get(f)

		switch {
		case inBase && inOverlay:
			if childStrategy == StrategyReplace {
				result.Set(f, overlayVal.DeepCopy())
				continue
			}
			merged, err := m.mergeNodes(child, baseVal, overlayVal)
			if err != nil {
				return nil, err
			}
			result.Set(f, merged)
		case inOverlay:
			// Added fields are never suppressed.
			result.Set(f, overlayVal.DeepCopy())
		default:
			// The overlay is silent about f: REPLACE deletes, anything else keeps.
			if childStrategy == StrategyReplace {
				result.Remove(f)
			}
		}
	}
	return result, nil
}

// unionKeys returns the field names of base in order, followed by the field
// names only present in overlay, in overlay order.
func unionKeys(base, overlay *Node) []string {
	keys := base.Keys()
	for _, k := range overlay.Keys() {
		if _, exists := base.Get(k); !exists {
			keys = append(keys, k)
		}
	}
	return keys
}

func (m *Merger) mergeArrays(path string, base, overlay *Node, rule Rule, hasRule bool) (*Node, error) {
	strategy := m.cfg.arrayStrategy()
	if hasRule {
		strategy = rule.strategy()
	}

	switch strategy {
	case StrategyReplace:
		return overlay.DeepCopy(), nil
	case StrategyAppend:
		result := &Node{kind: ArrayKind, items: make([]*Node, 0, base.Len()+overlay.Len())}
		for _, item := range base.items {
			result.items = append(result.items, item.DeepCopy())
		}
		for _, item := range overlay.items {
			result.items = append(result.items, item.DeepCopy())
		}
		return result, nil
	case StrategyMerge:
		if !hasRule {
			return nil, &StrategyError{Strategy: strategy, Path: path, Reason: ReasonMissingRule}
		}
		if rule.KeyField == "" {
			return nil, &StrategyError{Strategy: strategy, Path: path, Reason: ReasonMissingKeyField}
		}
		return m.mergeArraysByKey(path, base, overlay, rule.KeyField)
	default:
		return nil, &StrategyError{Strategy: strategy, Path: path, Reason: ReasonInvalidArrayStrategy}
	}
}

// mergeArraysByKey reconciles two arrays by the key extracted from each
// element. The result follows overlay order: matched elements are merged,
// unmatched overlay elements are added, and base elements without a match in
// the overlay are dropped. Base elements without a key never match.
func (m *Merger) mergeArraysByKey(path string, base, overlay *Node, keyField string) (*Node, error) {
	baseByKey := make(map[string]*Node, base.Len())
	for _, item := range base.items {
		if key, ok := LookupKey(item, keyField); ok {
			baseByKey[key] = item
		}
	}

	result := &Node{kind: ArrayKind, items: make([]*Node, 0, overlay.Len())}
	for _, item := range overlay.items {
		key, ok := LookupKey(item, keyField)
		baseItem, matched := baseByKey[key]
		if !ok || !matched {
			result.items = append(result.items, item.DeepCopy())
			continue
		}
		merged, err := m.mergeNodes(path, baseItem, item)
		if err != nil {
			return nil, err
		}
		result.items = append(result.items, merged)
		delete(baseByKey, key)
	}
	return result, nil
}
