// SPDX-License-Identifier: Apache-2.0

package pathmerge

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant of [Node] a value holds.
type Kind int

const (
	// ScalarKind is a leaf value: string, number, boolean or null.
	ScalarKind Kind = iota
	// ObjectKind is an ordered mapping from string keys to nodes.
	ObjectKind
	// ArrayKind is an ordered sequence of nodes.
	ArrayKind
)

func (k Kind) String() string {
	switch k {
	case ScalarKind:
		return "scalar"
	case ObjectKind:
		return "object"
	case ArrayKind:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Number is a numeric literal kept in its textual form, so that decoding and
// re-encoding a document does not change how its numbers are written.
type Number string

// String returns the literal text of the number.
func (n Number) String() string { return string(n) }

// Int64 returns the number as an int64.
func (n Number) Int64() (int64, error) {
	return strconv.ParseInt(string(n), 10, 64)
}

// Float64 returns the number as a float64.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Value returns the number as an int64 when it is integral and as a float64
// otherwise. Literals beyond the float64 range become ±Inf. Text that is not
// a number at all is returned unchanged.
func (n Number) Value() any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil || errors.Is(err, strconv.ErrRange) {
		return f
	}
	return string(n)
}

// field is a single key/value entry of an object node.
type field struct {
	key   string
	value *Node
}

// Node is a parsed document tree: an object, an array or a scalar.
//
// Object nodes keep their keys in insertion order. The zero value is a null
// scalar. A nil *Node is treated as a null scalar by every read accessor.
type Node struct {
	kind   Kind
	fields []field        // object entries in insertion order
	index  map[string]int // object key -> position in fields
	items  []*Node        // array elements
	value  any            // scalar payload
}

// NewObject returns an empty object node.
func NewObject() *Node {
	return &Node{kind: ObjectKind, index: map[string]int{}}
}

// NewArray returns an array node holding items.
func NewArray(items ...*Node) *Node {
	return &Node{kind: ArrayKind, items: slices.Clone(items)}
}

// NewScalar returns a scalar node holding v.
func NewScalar(v any) *Node {
	return &Node{kind: ScalarKind, value: v}
}

// Null returns a null scalar.
func Null() *Node {
	return &Node{kind: ScalarKind}
}

// Kind reports which variant n holds.
func (n *Node) Kind() Kind {
	if n == nil {
		return ScalarKind
	}
	return n.kind
}

// IsObject reports whether n is an object.
func (n *Node) IsObject() bool { return n.Kind() == ObjectKind }

// IsArray reports whether n is an array.
func (n *Node) IsArray() bool { return n.Kind() == ArrayKind }

// IsScalar reports whether n is a scalar.
func (n *Node) IsScalar() bool { return n.Kind() == ScalarKind }

// Len returns the number of fields of an object or elements of an array.
// Scalars have length zero.
func (n *Node) Len() int {
	switch n.Kind() {
	case ObjectKind:
		return len(n.fields)
	case ArrayKind:
		return len(n.items)
	default:
		return 0
	}
}

// Get returns the value of an object field.
func (n *Node) Get(key string) (*Node, bool) {
	if !n.IsObject() {
		return nil, false
	}
	i, ok := n.index[key]
	if !ok {
		return nil, false
	}
	return n.fields[i].value, true
}

// Set stores value under key. An existing key keeps its position; a new key
// is appended. Set panics if n is not an object.
func (n *Node) Set(key string, value *Node) {
	if !n.IsObject() {
		panic("pathmerge: Set on " + n.Kind().String() + " node")
	}
	if i, ok := n.index[key]; ok {
		n.fields[i].value = value
		return
	}
	if n.index == nil {
		n.index = map[string]int{}
	}
	n.index[key] = len(n.fields)
	n.fields = append(n.fields, field{key: key, value: value})
}

// Remove deletes key from an object and reports whether it was present.
func (n *Node) Remove(key string) bool {
	if !n.IsObject() {
		return false
	}
	i, ok := n.index[key]
	if !ok {
		return false
	}
	n.fields = slices.Delete(n.fields, i, i+1)
	delete(n.index, key)
	for j := i; j < len(n.fields); j++ {
		n.index[n.fields[j].key] = j
	}
	return true
}

// Keys returns the field names of an object in insertion order.
func (n *Node) Keys() []string {
	if !n.IsObject() {
		return nil
	}
	keys := make([]string, len(n.fields))
	for i, f := range n.fields {
		keys[i] = f.key
	}
	return keys
}

// Append adds items to the end of an array. Append panics if n is not an array.
func (n *Node) Append(items ...*Node) {
	if !n.IsArray() {
		panic("pathmerge: Append on " + n.Kind().String() + " node")
	}
	n.items = append(n.items, items...)
}

// Items returns the elements of an array. The returned slice is a copy; the
// elements are shared.
func (n *Node) Items() []*Node {
	if !n.IsArray() {
		return nil
	}
	return slices.Clone(n.items)
}

// Index returns the i'th element of an array. Index panics if n is not an
// array or i is out of range.
func (n *Node) Index(i int) *Node {
	if !n.IsArray() {
		panic("pathmerge: Index on " + n.Kind().String() + " node")
	}
	if i < 0 || i >= len(n.items) {
		panic(fmt.Sprintf("pathmerge: index %d out of range [0:%d]", i, len(n.items)))
	}
	return n.items[i]
}

// Value returns the payload of a scalar, or nil for containers.
func (n *Node) Value() any {
	if n == nil || n.kind != ScalarKind {
		return nil
	}
	return n.value
}

// IsNull reports whether n is a null scalar.
func (n *Node) IsNull() bool {
	return n.IsScalar() && n.Value() == nil
}

// Text returns the string form of a scalar. Null renders as "null". The second
// result is false for containers.
func (n *Node) Text() (string, bool) {
	if !n.IsScalar() {
		return "", false
	}
	switch v := n.Value().(type) {
	case nil:
		return "null", true
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case Number:
		return string(v), true
	case int:
		return strconv.Itoa(v), true
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v), true
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), true
	case float32:
		return formatFloat(float64(v), 32), true
	case float64:
		return formatFloat(v, 64), true
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', 1, bits)
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// DeepCopy returns a copy of n that shares no containers with it.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	switch n.kind {
	case ObjectKind:
		res := &Node{
			kind:   ObjectKind,
			fields: make([]field, len(n.fields)),
			index:  make(map[string]int, len(n.fields)),
		}
		for i, f := range n.fields {
			res.fields[i] = field{key: f.key, value: f.value.DeepCopy()}
			res.index[f.key] = i
		}
		return res
	case ArrayKind:
		res := &Node{kind: ArrayKind, items: make([]*Node, len(n.items))}
		for i, item := range n.items {
			res.items[i] = item.DeepCopy()
		}
		return res
	default:
		return &Node{kind: ScalarKind, value: n.value}
	}
}

// Equal reports whether n and other have the same structure, the same object
// key order and equal scalars. Scalars compare by kind of value and text, so
// Number("1") and int64(1) are equal but "1" and int64(1) are not.
func (n *Node) Equal(other *Node) bool {
	if n.Kind() != other.Kind() {
		return false
	}
	switch n.Kind() {
	case ObjectKind:
		if len(n.fields) != len(other.fields) {
			return false
		}
		for i, f := range n.fields {
			o := other.fields[i]
			if f.key != o.key || !f.value.Equal(o.value) {
				return false
			}
		}
		return true
	case ArrayKind:
		if len(n.items) != len(other.items) {
			return false
		}
		for i, item := range n.items {
			if !item.Equal(other.items[i]) {
				return false
			}
		}
		return true
	default:
		return scalarEqual(n.Value(), other.Value())
	}
}

type scalarClass int

const (
	classNull scalarClass = iota
	classBool
	classString
	classNumber
	classOther
)

func classify(v any) scalarClass {
	switch v.(type) {
	case nil:
		return classNull
	case bool:
		return classBool
	case string:
		return classString
	case Number, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return classNumber
	default:
		return classOther
	}
}

func scalarEqual(a, b any) bool {
	ca, cb := classify(a), classify(b)
	if ca != cb {
		return false
	}
	ta, _ := NewScalar(a).Text()
	tb, _ := NewScalar(b).Text()
	if ta == tb {
		return true
	}
	if ca == classNumber {
		fa, errA := strconv.ParseFloat(ta, 64)
		fb, errB := strconv.ParseFloat(tb, 64)
		return errA == nil && errB == nil && fa == fb
	}
	return false
}

// Depth returns the nesting depth of n. Scalars and empty containers have
// depth 1.
func (n *Node) Depth() int {
	depth := 0
	switch n.Kind() {
	case ObjectKind:
		for _, f := range n.fields {
			depth = max(depth, f.value.Depth())
		}
	case ArrayKind:
		for _, item := range n.items {
			depth = max(depth, item.Depth())
		}
	}
	return depth + 1
}

// FromValue builds a tree from generic Go values: map[string]any, []any and
// scalars. Map keys are sorted since Go maps carry no order. Nested *Node
// values are deep-copied.
func FromValue(v any) (*Node, error) {
	switch v := v.(type) {
	case *Node:
		return v.DeepCopy(), nil
	case map[string]any:
		obj := NewObject()
		for _, k := range slices.Sorted(maps.Keys(v)) {
			child, err := FromValue(v[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, child)
		}
		return obj, nil
	case []map[string]any:
		arr := NewArray()
		for i, item := range v {
			child, err := FromValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr.Append(child)
		}
		return arr, nil
	case []any:
		arr := NewArray()
		for i, item := range v {
			child, err := FromValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr.Append(child)
		}
		return arr, nil
	case nil, bool, string, Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, time.Time:
		return NewScalar(v), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Interface converts n into generic Go values: objects become map[string]any,
// arrays []any, and scalars their payload. Object key order is lost.
func (n *Node) Interface() any {
	switch n.Kind() {
	case ObjectKind:
		m := make(map[string]any, len(n.fields))
		for _, f := range n.fields {
			m[f.key] = f.value.Interface()
		}
		return m
	case ArrayKind:
		s := make([]any, len(n.items))
		for i, item := range n.items {
			s[i] = item.Interface()
		}
		return s
	default:
		return n.Value()
	}
}

// String renders n in a compact, JSON-like form for debugging and test output.
func (n *Node) String() string {
	var sb strings.Builder
	n.writeTo(&sb)
	return sb.String()
}

func (n *Node) writeTo(sb *strings.Builder) {
	switch n.Kind() {
	case ObjectKind:
		sb.WriteByte('{')
		for i, f := range n.fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(f.key))
			sb.WriteString(": ")
			f.value.writeTo(sb)
		}
		sb.WriteByte('}')
	case ArrayKind:
		sb.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.writeTo(sb)
		}
		sb.WriteByte(']')
	default:
		if str, ok := n.Value().(string); ok {
			sb.WriteString(strconv.Quote(str))
			return
		}
		text, _ := n.Text()
		sb.WriteString(text)
	}
}
