// SPDX-License-Identifier: Apache-2.0

// Package codec provides the JSON, YAML and TOML format adapters for
// pathmerge. Each adapter parses documents into [pathmerge.Node] trees while
// keeping object key order, and writes trees back out.
package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sam-fredrickson/pathmerge"
)

var (
	// ErrUnknownFormat indicates a format name or file extension no codec handles.
	ErrUnknownFormat = errors.New("unknown format")
	// ErrUnsupported indicates a tree the target format cannot represent.
	ErrUnsupported = errors.New("unsupported by format")
)

var byName = map[string]pathmerge.Codec{
	"json": JSON,
	"yaml": YAML,
	"yml":  YAML,
	"toml": TOML,
}

// Names returns the canonical names of the available formats.
func Names() []string {
	return []string{JSON.Name(), TOML.Name(), YAML.Name()}
}

// ForName returns the codec for a format name such as "json" or "YAML".
func ForName(name string) (pathmerge.Codec, error) {
	c, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (valid: %s)", ErrUnknownFormat, name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// ForExtension returns the codec for a file extension, with or without the
// leading dot.
func ForExtension(ext string) (pathmerge.Codec, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return nil, fmt.Errorf("%w: missing file extension", ErrUnknownFormat)
	}
	return ForName(ext)
}

// ForPath returns the codec for a file path based on its extension.
func ForPath(path string) (pathmerge.Codec, error) {
	c, err := ForExtension(filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
