// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/sirupsen/logrus"

	"github.com/sam-fredrickson/pathmerge"
	"github.com/sam-fredrickson/pathmerge/codec"
)

// KRM annotation constants.
const (
	// AnnotationBase is the base prefix for all pathmerge annotations.
	AnnotationBase = "config.pathmerge.io/"

	// AnnotationID is a correlation key grouping ConfigMaps for a single merge operation.
	AnnotationID = AnnotationBase + "id"

	// AnnotationOrder defines the merge order for ConfigMaps with the same ID.
	// Lower numbers are merged first. The ConfigMap with order=0 is the base.
	AnnotationOrder = AnnotationBase + "order"

	// AnnotationFinalName specifies the desired metadata.name of the final merged ConfigMap.
	// Must be present on the base ConfigMap (order=0).
	AnnotationFinalName = AnnotationBase + "final-name"

	// AnnotationObjectStrategy sets the strategy for objects without a rule.
	AnnotationObjectStrategy = AnnotationBase + "object-strategy"

	// AnnotationArrayStrategy sets the strategy for lists without a rule.
	AnnotationArrayStrategy = AnnotationBase + "array-strategy"

	// AnnotationRules lists semicolon-separated rules, each PATH:STRATEGY[:KEYFIELD].
	// Example: "users:merge:name; tags:replace".
	AnnotationRules = AnnotationBase + "rules"
)

// TypeMeta describes an individual object in a ResourceList.
type TypeMeta struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Kind       string `yaml:"kind" json:"kind"`
}

// ObjectMeta is metadata that all persisted resources must have.
type ObjectMeta struct {
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// ConfigMap represents a Kubernetes ConfigMap resource.
type ConfigMap struct {
	TypeMeta   `yaml:",inline" json:",inline"`
	ObjectMeta `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Data       map[string]string `yaml:"data,omitempty" json:"data,omitempty"`
}

// ResourceList is the input/output format for KRM functions.
// See: https://github.com/kubernetes-sigs/kustomize/blob/master/cmd/config/docs/api-conventions/functions-spec.md
type ResourceList struct {
	APIVersion string           `yaml:"apiVersion" json:"apiVersion"`
	Kind       string           `yaml:"kind" json:"kind"`
	Items      []map[string]any `yaml:"items" json:"items"`
}

// configMapGroup is a set of ConfigMaps with the same ID, sorted by order.
type configMapGroup struct {
	id         string
	configMaps []*orderedConfigMap
}

// orderedConfigMap is a ConfigMap with its merge order and merge policy.
type orderedConfigMap struct {
	order     int
	configMap ConfigMap
	config    pathmerge.Config
	finalName string // only set on base (order=0)
}

// Run reads a ResourceList from in, merges annotated ConfigMap groups, and
// writes the resulting ResourceList to out.
func Run(log logrus.FieldLogger, in io.Reader, out io.Writer) error {
	rl, err := readResourceList(in)
	if err != nil {
		return fmt.Errorf("failed to read ResourceList: %w", err)
	}

	groups, passthrough, err := groupConfigMaps(rl)
	if err != nil {
		return fmt.Errorf("failed to group ConfigMaps: %w", err)
	}

	// Deterministic output order
	ids := slices.Sorted(maps.Keys(groups))
	merged := make([]map[string]any, 0, len(groups))
	for _, id := range ids {
		group := groups[id]
		cm, err := mergeConfigMapGroup(log.WithField("id", id), group)
		if err != nil {
			return fmt.Errorf("failed to merge ConfigMap group %q: %w", id, err)
		}
		merged = append(merged, cm)
	}
	log.WithFields(logrus.Fields{
		"groups":      len(groups),
		"passthrough": len(passthrough),
	}).Debug("processed ResourceList")

	outputRL := ResourceList{
		APIVersion: "v1",
		Kind:       "ResourceList",
		Items:      append(passthrough, merged...),
	}
	if err := writeResourceList(out, outputRL); err != nil {
		return fmt.Errorf("failed to write ResourceList: %w", err)
	}
	return nil
}

func readResourceList(r io.Reader) (*ResourceList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var rl ResourceList
	if err := yaml.Unmarshal(data, &rl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ResourceList: %w", err)
	}
	return &rl, nil
}

func writeResourceList(w io.Writer, rl ResourceList) error {
	data, err := yaml.Marshal(rl)
	if err != nil {
		return fmt.Errorf("failed to marshal ResourceList: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// groupConfigMaps separates ConfigMaps with pathmerge annotations from passthrough resources.
func groupConfigMaps(rl *ResourceList) (map[string]*configMapGroup, []map[string]any, error) {
	groups := make(map[string]*configMapGroup)
	var passthrough []map[string]any

	for _, item := range rl.Items {
		cm, isConfigMap, err := parseConfigMap(item)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse resource: %w", err)
		}
		if !isConfigMap {
			passthrough = append(passthrough, item)
			continue
		}

		id := cm.Annotations[AnnotationID]
		if id == "" {
			passthrough = append(passthrough, item)
			continue
		}

		ordered, err := parseAnnotations(cm)
		if err != nil {
			return nil, nil, fmt.Errorf("ConfigMap %q: %w", cm.Name, err)
		}

		if groups[id] == nil {
			groups[id] = &configMapGroup{id: id}
		}
		groups[id].configMaps = append(groups[id].configMaps, ordered)
	}

	for id, group := range groups {
		if err := prepareGroup(group); err != nil {
			return nil, nil, fmt.Errorf("ConfigMap group %q: %w", id, err)
		}
	}
	return groups, passthrough, nil
}

// parseConfigMap attempts to parse a resource item as a ConfigMap.
func parseConfigMap(item map[string]any) (ConfigMap, bool, error) {
	apiVersion, _ := item["apiVersion"].(string)
	kind, _ := item["kind"].(string)
	if kind != "ConfigMap" {
		return ConfigMap{}, false, nil
	}

	data, err := yaml.Marshal(item)
	if err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to marshal item: %w", err)
	}
	var cm ConfigMap
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to unmarshal ConfigMap: %w", err)
	}

	if cm.APIVersion == "" {
		cm.APIVersion = apiVersion
	}
	if cm.Kind == "" {
		cm.Kind = kind
	}
	return cm, true, nil
}

func parseAnnotations(cm ConfigMap) (*orderedConfigMap, error) {
	annotations := cm.Annotations

	orderStr := annotations[AnnotationOrder]
	if orderStr == "" {
		return nil, fmt.Errorf("missing required annotation %q", AnnotationOrder)
	}
	order, err := strconv.Atoi(strings.TrimSpace(orderStr))
	if err != nil {
		return nil, fmt.Errorf("invalid %q annotation: %w", AnnotationOrder, err)
	}

	cfg, err := parseMergeConfig(annotations)
	if err != nil {
		return nil, err
	}

	return &orderedConfigMap{
		order:     order,
		configMap: cm,
		config:    cfg,
		finalName: annotations[AnnotationFinalName],
	}, nil
}

// parseMergeConfig builds a merge policy from annotations. Missing
// annotations leave the defaults in place.
func parseMergeConfig(annotations map[string]string) (pathmerge.Config, error) {
	var cfg pathmerge.Config

	for _, a := range []struct {
		name   string
		target *pathmerge.Strategy
	}{
		{AnnotationObjectStrategy, &cfg.ObjectStrategy},
		{AnnotationArrayStrategy, &cfg.ArrayStrategy},
	} {
		value := annotations[a.name]
		if value == "" {
			continue
		}
		s, err := pathmerge.ParseStrategy(value)
		if err != nil {
			return cfg, fmt.Errorf("invalid %q annotation: %w", a.name, err)
		}
		*a.target = s
	}

	for _, part := range strings.Split(annotations[AnnotationRules], ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		rule, err := pathmerge.ParseRule(part)
		if err != nil {
			return cfg, fmt.Errorf("invalid %q annotation: %w", AnnotationRules, err)
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	return cfg, nil
}

// prepareGroup sorts a group by order and validates its base.
func prepareGroup(group *configMapGroup) error {
	slices.SortStableFunc(group.configMaps, func(a, b *orderedConfigMap) int {
		return cmp.Compare(a.order, b.order)
	})

	if len(group.configMaps) == 0 {
		return errors.New("empty ConfigMap group")
	}

	base := group.configMaps[0]
	if base.order != 0 {
		return fmt.Errorf("no base ConfigMap with order=0 (lowest order is %d)", base.order)
	}
	if base.finalName == "" {
		return fmt.Errorf("base ConfigMap %q missing required annotation %q", base.configMap.Name, AnnotationFinalName)
	}
	return nil
}

// mergeConfigMapGroup merges all ConfigMaps in a group into a single ConfigMap.
func mergeConfigMapGroup(log logrus.FieldLogger, group *configMapGroup) (map[string]any, error) {
	base := group.configMaps[0]

	keys := make(map[string]struct{})
	for _, cm := range group.configMaps {
		for key := range cm.configMap.Data {
			keys[key] = struct{}{}
		}
	}

	mergedData := make(map[string]string)
	for _, dataKey := range slices.Sorted(maps.Keys(keys)) {
		merged, err := mergeDataKey(log.WithField("key", dataKey), group, dataKey)
		if err != nil {
			return nil, fmt.Errorf("failed to merge data key %q: %w", dataKey, err)
		}
		if merged != "" {
			mergedData[dataKey] = merged
		}
	}

	result := ConfigMap{
		TypeMeta: TypeMeta{
			APIVersion: "v1",
			Kind:       "ConfigMap",
		},
		ObjectMeta: ObjectMeta{
			Name:        base.finalName,
			Namespace:   base.configMap.Namespace,
			Annotations: filterAnnotations(base.configMap.Annotations),
			Labels:      base.configMap.Labels,
		},
		Data: mergedData,
	}

	// Convert to map[string]any for ResourceList
	data, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged ConfigMap: %w", err)
	}
	var resultMap map[string]any
	if err := yaml.Unmarshal(data, &resultMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal merged ConfigMap: %w", err)
	}
	return resultMap, nil
}

// mergeDataKey folds a single data key across the ConfigMaps of a group that
// carry it. Each step uses the merge policy of that step's overlay.
func mergeDataKey(log logrus.FieldLogger, group *configMapGroup, dataKey string) (string, error) {
	var present []*orderedConfigMap
	for _, cm := range group.configMaps {
		if cm.configMap.Data[dataKey] != "" {
			present = append(present, cm)
		}
	}

	switch len(present) {
	case 0:
		return "", nil
	case 1:
		return present[0].configMap.Data[dataKey], nil
	}

	c := codecForKey(dataKey)
	result, err := c.Decode([]byte(present[0].configMap.Data[dataKey]))
	if err != nil {
		return "", fmt.Errorf("ConfigMap %q (format: %s): %w",
			present[0].configMap.Name, c.Name(), &pathmerge.DecodeError{Err: err, Doc: pathmerge.DocBase})
	}

	for _, cm := range present[1:] {
		overlay, err := c.Decode([]byte(cm.configMap.Data[dataKey]))
		if err != nil {
			return "", fmt.Errorf("ConfigMap %q (format: %s): %w",
				cm.configMap.Name, c.Name(), &pathmerge.DecodeError{Err: err, Doc: pathmerge.DocOverlay})
		}
		merger, err := pathmerge.NewMerger(cm.config)
		if err != nil {
			return "", fmt.Errorf("ConfigMap %q: %w", cm.configMap.Name, err)
		}
		if result, err = merger.Merge(result, overlay); err != nil {
			return "", fmt.Errorf("ConfigMap %q (format: %s): %w", cm.configMap.Name, c.Name(), err)
		}
		log.WithField("configMap", cm.configMap.Name).Debug("merged")
	}

	out, err := c.Encode(result, false)
	if err != nil {
		return "", fmt.Errorf("failed to encode result as %s: %w", c.Name(), err)
	}
	return string(out), nil
}

// codecForKey picks the codec by the data key's extension (e.g.
// "config.json" is JSON). Keys without a known extension are YAML, as is
// common in Kubernetes.
func codecForKey(dataKey string) pathmerge.Codec {
	c, err := codec.ForPath(dataKey)
	if err != nil {
		return codec.YAML
	}
	return c
}

// filterAnnotations removes pathmerge annotations.
func filterAnnotations(annotations map[string]string) map[string]string {
	filtered := make(map[string]string)
	for key, value := range annotations {
		if !strings.HasPrefix(key, AnnotationBase) {
			filtered[key] = value
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
