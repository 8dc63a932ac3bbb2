// SPDX-License-Identifier: Apache-2.0

package pathmerge

// Codec converts between a serialization format and [Node] trees.
//
// Decode must keep object key order and scalar fidelity; Encode must be able to
// write back any tree Decode produced. Marshal and Unmarshal convert arbitrary
// Go values and are used by [TypedMerger].
type Codec interface {
	// Name returns the format name, e.g. "json".
	Name() string
	// Decode parses a document into a tree.
	Decode(data []byte) (*Node, error)
	// Encode serializes a tree, optionally pretty-printed.
	Encode(n *Node, pretty bool) ([]byte, error)
	// Marshal serializes a Go value.
	Marshal(v any) ([]byte, error)
	// Unmarshal parses a document into a Go value.
	Unmarshal(data []byte, v any) error
}

// MergeBytes merges two encoded documents. See [Merger.MergeBytes] for details.
func MergeBytes(cfg Config, c Codec, base, overlay []byte) ([]byte, error) {
	m, err := NewMerger(cfg)
	if err != nil {
		return nil, err
	}
	return m.MergeBytes(c, base, overlay)
}

// MergeBytes decodes base and overlay with c, merges them with [Merger.Merge],
// and encodes the result with c, pretty-printed if the configuration asks for
// it.
//
// Example:
//
//	import "github.com/sam-fredrickson/pathmerge/codec"
//
//	var cfg Config
//	cfg.AddRule("users", "name")
//	base := []byte("users:\n  - name: alice\n    role: user")
//	overlay := []byte("users:\n  - name: alice\n    role: admin")
//	result, _ := MergeBytes(cfg, codec.YAML, base, overlay)
func (m *Merger) MergeBytes(c Codec, base, overlay []byte) ([]byte, error) {
	baseNode, err := c.Decode(base)
	if err != nil {
		return nil, &DecodeError{Err: err, Doc: DocBase}
	}
	overlayNode, err := c.Decode(overlay)
	if err != nil {
		return nil, &DecodeError{Err: err, Doc: DocOverlay}
	}

	result, err := m.Merge(baseNode, overlayNode)
	if err != nil {
		return nil, err
	}

	out, err := c.Encode(result, m.cfg.PrettyPrint)
	if err != nil {
		return nil, &DecodeError{Err: err, Doc: DocResult}
	}
	return out, nil
}
