// SPDX-License-Identifier: Apache-2.0

package pathmerge

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ErrInvalidTag indicates a pm struct tag contains an invalid directive.
var ErrInvalidTag = errors.New("invalid tag")

// TagKind identifies which pm struct tag directive had an error.
type TagKind int

const (
	// UnknownTag indicates an unknown or unsupported pm tag directive.
	UnknownTag TagKind = iota
	// StrategyTag indicates an error with pm:"strategy=..." directive.
	StrategyTag
	// KeyTag indicates an error with pm:"key=..." directive.
	KeyTag
	// FieldTag indicates an error with pm:"field=..." directive.
	FieldTag
)

func (k TagKind) String() string {
	switch k {
	case UnknownTag:
		return "unknown"
	case StrategyTag:
		return "strategy"
	case KeyTag:
		return "key"
	case FieldTag:
		return "field"
	default:
		return fmt.Sprintf("TagKind(%d)", k)
	}
}

// InvalidTagError is returned when a pm struct tag contains an invalid directive or value.
type InvalidTagError struct {
	// Kind indicates which pm tag directive had the error.
	Kind TagKind
	// FieldName is the struct field name where the error occurred.
	FieldName string
	// Value is the invalid value (e.g., the invalid strategy string).
	Value string
	// Message provides details about what went wrong.
	Message string
}

func (e *InvalidTagError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("field %s: invalid %s tag: %s (value: %q)",
			e.FieldName, e.Kind.String(), e.Message, e.Value)
	}
	return fmt.Sprintf("field %s: invalid %s tag: %s",
		e.FieldName, e.Kind.String(), e.Message)
}

func (e *InvalidTagError) Is(target error) bool {
	return target == ErrInvalidTag
}

// TypedMerger merges values of type T by round-tripping them through a
// [Codec]: both values are marshaled, decoded into trees, merged, and the
// result is unmarshaled back into a T.
//
// It embeds a [Merger] and inherits all its methods. Besides the rules of the
// [Config] it was created with, it applies rules derived from pm struct tags
// on T. Explicit configuration rules come first and therefore win.
//
// Struct tag format:
//   - pm:"strategy=replace|append|merge" - sets the strategy at this field's path
//   - pm:"key=name" - merges a list field by the given key field (implies merge)
//   - pm:"field=name" - overrides field name detection (for non-standard serialization)
//
// Multiple directives can be combined: pm:"field=svcs,key=name"
//
// Field names are detected from the struct tag matching the codec name
// (json, yaml or toml), then the others, then the Go field name. Fields of
// list element types share the path of the list, matching how paths are
// tracked during merging.
//
// Fields that the codec cannot represent do not survive a merge. Zero-valued
// overlay fields are marshaled like any other and override the base, so
// optional fields should carry omitempty.
//
// Example:
//
//	type Config struct {
//		Services []Service `yaml:"services" pm:"key=name"`
//		Tags     []string  `yaml:"tags" pm:"strategy=replace"`
//	}
//
//	type Service struct {
//		Name string            `yaml:"name"`
//		Env  map[string]string `yaml:"env"`
//	}
//
//	merger, _ := NewTypedMerger[Config](Config{}, codec.YAML)
//	result, _ := merger.Merge(base, overlay)
type TypedMerger[T any] struct {
	*Merger
	codec Codec
}

// NewTypedMerger creates a new [TypedMerger] with rules extracted from type T's struct tags.
//
// Returns an error if the configuration is invalid or if struct tags contain invalid directives.
func NewTypedMerger[T any](cfg Config, c Codec) (*TypedMerger[T], error) {
	rules, err := RulesFromTags[T](c.Name())
	if err != nil {
		return nil, err
	}

	cfg = cfg.Clone()
	cfg.Rules = append(cfg.Rules, rules...)

	merger, err := NewMerger(cfg)
	if err != nil {
		return nil, err
	}
	return &TypedMerger[T]{Merger: merger, codec: c}, nil
}

// Merge merges overlay onto base and returns the result as a new T.
func (tm *TypedMerger[T]) Merge(base, overlay T) (T, error) {
	var result T

	baseData, err := tm.codec.Marshal(base)
	if err != nil {
		return result, &DecodeError{Err: err, Doc: DocBase}
	}
	overlayData, err := tm.codec.Marshal(overlay)
	if err != nil {
		return result, &DecodeError{Err: err, Doc: DocOverlay}
	}

	merged, err := tm.MergeBytes(tm.codec, baseData, overlayData)
	if err != nil {
		return result, err
	}

	if err := tm.codec.Unmarshal(merged, &result); err != nil {
		return result, &DecodeError{Err: err, Doc: DocResult}
	}
	return result, nil
}

// RulesFromTags derives merge rules from the pm struct tags of T. tagName
// selects which serialization tag ("json", "yaml" or "toml") is consulted
// first for field names.
func RulesFromTags[T any](tagName string) ([]Rule, error) {
	order := []string{"yaml", "json", "toml"}
	if i := slices.Index(order, tagName); i > 0 {
		order = append([]string{tagName}, slices.Delete(order, i, i+1)...)
	}
	b := ruleBuilder{tagOrder: order, visiting: map[reflect.Type]bool{}}
	if err := b.build(reflect.TypeOf((*T)(nil)).Elem(), ""); err != nil {
		return nil, err
	}
	return b.rules, nil
}

type ruleBuilder struct {
	tagOrder []string
	visiting map[reflect.Type]bool // struct types on the current descent
	rules    []Rule
}

// tagDirectives holds the parsed directives of one pm tag.
type tagDirectives struct {
	strategy Strategy
	key      string
}

// build walks a type and collects rules for tagged fields below path.
func (b *ruleBuilder) build(t reflect.Type, path string) error {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || b.visiting[t] {
		return nil
	}
	b.visiting[t] = true
	defer delete(b.visiting, t)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		fieldName, inline, err := b.fieldName(field)
		if err != nil {
			return err
		}
		if fieldName == "-" {
			continue
		}

		// Embedded structs without a name of their own are flattened into the parent
		if inline {
			if err := b.build(field.Type, path); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
			continue
		}

		fieldPath := childPath(path, fieldName)
		if pmTag := field.Tag.Get("pm"); pmTag != "" {
			directives, err := parsePMTag(pmTag, field)
			if err != nil {
				return err
			}
			if directives.key != "" || directives.strategy != StrategyDefault {
				b.rules = append(b.rules, Rule{
					Path:     fieldPath,
					KeyField: directives.key,
					Strategy: directives.strategy,
				})
			}
		}

		if err := b.build(field.Type, fieldPath); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

// fieldName extracts the serialized field name from struct tags.
// Priority: pm:field override > serialization tags in tagOrder > struct field name.
// The second result reports an embedded struct whose fields are inlined.
func (b *ruleBuilder) fieldName(field reflect.StructField) (string, bool, error) {
	// Check pm tag for explicit field name override
	if pmTag := field.Tag.Get("pm"); pmTag != "" {
		fieldName, err := extractFieldDirective(pmTag)
		if err != nil {
			return "", false, &InvalidTagError{
				Kind:      FieldTag,
				FieldName: field.Name,
				Value:     pmTag,
				Message:   err.Error(),
			}
		}
		if fieldName != "" {
			return fieldName, false, nil
		}
	}

	// Check common serialization tags
	for _, tagName := range b.tagOrder {
		tag := field.Tag.Get(tagName)
		if tag == "" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "-" && opts == "" {
			return "-", false, nil
		}
		if slices.Contains(strings.Split(opts, ","), "inline") {
			return "", true, nil
		}
		if name != "" {
			return name, false, nil
		}
	}

	if field.Anonymous && indirect(field.Type).Kind() == reflect.Struct {
		return "", true, nil
	}

	// Fall back to struct field name
	return field.Name, false, nil
}

func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// extractFieldDirective extracts the field=name directive from a pm tag.
func extractFieldDirective(pmTag string) (string, error) {
	for _, part := range strings.Split(pmTag, ",") {
		part = strings.TrimSpace(part)
		if fieldName, ok := strings.CutPrefix(part, "field="); ok {
			if fieldName == "" {
				return "", errors.New("field name cannot be empty")
			}
			return fieldName, nil
		}
	}
	return "", nil
}

// parsePMTag parses the pm struct tag of field.
func parsePMTag(tag string, field reflect.StructField) (tagDirectives, error) {
	var d tagDirectives
	isList := indirect(field.Type).Kind() == reflect.Slice || indirect(field.Type).Kind() == reflect.Array

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)

		if value, ok := strings.CutPrefix(part, "strategy="); ok {
			s, err := ParseStrategy(value)
			if err != nil || s == StrategyDefault {
				return d, &InvalidTagError{
					Kind:      StrategyTag,
					FieldName: field.Name,
					Value:     value,
					Message:   "valid: replace, append, merge",
				}
			}
			if s == StrategyAppend && !isList {
				return d, &InvalidTagError{
					Kind:      StrategyTag,
					FieldName: field.Name,
					Value:     value,
					Message:   "append requires a slice or array field",
				}
			}
			d.strategy = s
			continue
		}

		if value, ok := strings.CutPrefix(part, "key="); ok {
			if value == "" {
				return d, &InvalidTagError{
					Kind:      KeyTag,
					FieldName: field.Name,
					Message:   "key field cannot be empty",
				}
			}
			if !isList {
				return d, &InvalidTagError{
					Kind:      KeyTag,
					FieldName: field.Name,
					Value:     value,
					Message:   "key requires a slice or array field",
				}
			}
			d.key = value
			continue
		}

		// field= is handled separately in fieldName, skip it here
		if strings.HasPrefix(part, "field=") {
			continue
		}

		// Unknown directive
		return d, &InvalidTagError{
			Kind:      UnknownTag,
			FieldName: field.Name,
			Value:     part,
			Message:   "unknown pm tag directive",
		}
	}

	if d.key != "" && d.strategy == StrategyDefault {
		d.strategy = StrategyMerge
	}
	if isList && d.strategy == StrategyMerge && d.key == "" {
		return d, &InvalidTagError{
			Kind:      KeyTag,
			FieldName: field.Name,
			Message:   "strategy=merge on a list requires a key",
		}
	}
	if d.key != "" && d.strategy != StrategyMerge {
		return d, &InvalidTagError{
			Kind:      KeyTag,
			FieldName: field.Name,
			Value:     d.key,
			Message:   "key can only be combined with strategy=merge",
		}
	}
	return d, nil
}
