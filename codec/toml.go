// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/sam-fredrickson/pathmerge"
)

// TOML reads and writes TOML documents.
//
// Key order is recovered from the decoder's metadata when reading. The encoder
// writes keys in its own canonical order (plain keys sorted, then tables), so
// TOML output does not preserve tree order. TOML has no null: null fields are
// omitted and null array elements are an error.
var TOML pathmerge.Codec = tomlCodec{}

type tomlCodec struct{}

func (tomlCodec) Name() string { return "toml" }

func (tomlCodec) Marshal(v any) ([]byte, error) { return toml.Marshal(v) }

func (tomlCodec) Unmarshal(data []byte, v any) error { return toml.Unmarshal(data, v) }

func (tomlCodec) Decode(data []byte) (*pathmerge.Node, error) {
	var m map[string]any
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}

	// position of the first appearance of every key path
	order := make(map[string]int)
	for i, key := range md.Keys() {
		k := strings.Join(key, "\x00")
		if _, seen := order[k]; !seen {
			order[k] = i
		}
	}
	return fromTOML(m, "", order)
}

func fromTOML(v any, prefix string, order map[string]int) (*pathmerge.Node, error) {
	switch v := v.(type) {
	case map[string]any:
		keyPath := func(k string) string {
			if prefix == "" {
				return k
			}
			return prefix + "\x00" + k
		}
		position := func(k string) int {
			if i, ok := order[keyPath(k)]; ok {
				return i
			}
			return math.MaxInt
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b string) int {
			return cmp.Or(cmp.Compare(position(a), position(b)), strings.Compare(a, b))
		})

		obj := pathmerge.NewObject()
		for _, k := range keys {
			value, err := fromTOML(v[k], keyPath(k), order)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, value)
		}
		return obj, nil
	case []map[string]any:
		arr := pathmerge.NewArray()
		for _, item := range v {
			value, err := fromTOML(item, prefix, order)
			if err != nil {
				return nil, err
			}
			arr.Append(value)
		}
		return arr, nil
	case []any:
		arr := pathmerge.NewArray()
		for _, item := range v {
			value, err := fromTOML(item, prefix, order)
			if err != nil {
				return nil, err
			}
			arr.Append(value)
		}
		return arr, nil
	case nil:
		return pathmerge.NewObject(), nil
	default:
		return pathmerge.NewScalar(v), nil
	}
}

// Encode writes a table document. Pretty output indents sub-tables.
func (tomlCodec) Encode(n *pathmerge.Node, pretty bool) ([]byte, error) {
	if !n.IsObject() {
		return nil, fmt.Errorf("%w: TOML documents must be tables, got %s", ErrUnsupported, n.Kind())
	}
	v, err := toTOML(n)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if pretty {
		enc.Indent = "  "
	} else {
		enc.Indent = ""
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toTOML(n *pathmerge.Node) (any, error) {
	switch n.Kind() {
	case pathmerge.ObjectKind:
		m := make(map[string]any, n.Len())
		for _, key := range n.Keys() {
			value, _ := n.Get(key)
			if value.IsNull() {
				continue
			}
			v, err := toTOML(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			m[key] = v
		}
		return m, nil
	case pathmerge.ArrayKind:
		items := n.Items()
		s := make([]any, len(items))
		for i, item := range items {
			if item.IsNull() {
				return nil, fmt.Errorf("[%d]: %w: null array element", i, ErrUnsupported)
			}
			v, err := toTOML(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			s[i] = v
		}
		return s, nil
	default:
		if num, ok := n.Value().(pathmerge.Number); ok {
			return num.Value(), nil
		}
		return n.Value(), nil
	}
}
