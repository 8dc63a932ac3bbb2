// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/pathmerge"
)

// YAML reads and writes YAML documents. Only the first document of a stream
// is read; an empty document decodes to null.
var YAML pathmerge.Codec = yamlCodec{}

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Marshal(v any) ([]byte, error) { return yaml.Marshal(v) }

func (yamlCodec) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }

// Decode uses ordered mappings so that keys stay in document order.
func (yamlCodec) Decode(data []byte) (*pathmerge.Node, error) {
	var v any
	if err := yaml.UnmarshalWithOptions(data, &v, yaml.UseOrderedMap()); err != nil {
		return nil, err
	}
	return fromYAML(v)
}

func fromYAML(v any) (*pathmerge.Node, error) {
	switch v := v.(type) {
	case yaml.MapSlice:
		obj := pathmerge.NewObject()
		for _, item := range v {
			key := yamlKey(item.Key)
			value, err := fromYAML(item.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			obj.Set(key, value)
		}
		return obj, nil
	case []any:
		arr := pathmerge.NewArray()
		for i, item := range v {
			value, err := fromYAML(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr.Append(value)
		}
		return arr, nil
	case map[string]any:
		return pathmerge.FromValue(v)
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[yamlKey(k)] = val
		}
		return pathmerge.FromValue(m)
	default:
		return pathmerge.NewScalar(v), nil
	}
}

// yamlKey renders a mapping key as a string. YAML allows non-string keys; the
// tree model does not.
func yamlKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	if k == nil {
		return "null"
	}
	text, _ := pathmerge.NewScalar(k).Text()
	return text
}

// Encode writes mappings in tree order. Pretty output indents sequences under
// their parent key.
func (yamlCodec) Encode(n *pathmerge.Node, pretty bool) ([]byte, error) {
	v := toYAML(n)
	if pretty {
		return yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(true))
	}
	return yaml.Marshal(v)
}

func toYAML(n *pathmerge.Node) any {
	switch n.Kind() {
	case pathmerge.ObjectKind:
		keys := n.Keys()
		ms := make(yaml.MapSlice, 0, len(keys))
		for _, key := range keys {
			value, _ := n.Get(key)
			ms = append(ms, yaml.MapItem{Key: key, Value: toYAML(value)})
		}
		return ms
	case pathmerge.ArrayKind:
		items := n.Items()
		s := make([]any, len(items))
		for i, item := range items {
			s[i] = toYAML(item)
		}
		return s
	default:
		if num, ok := n.Value().(pathmerge.Number); ok {
			return num.Value()
		}
		return n.Value()
	}
}
