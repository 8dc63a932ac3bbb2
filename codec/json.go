// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/sam-fredrickson/pathmerge"
)

// JSON reads and writes JSON documents. Numbers keep their literal text.
var JSON pathmerge.Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Decode walks the token stream so that object keys stay in document order.
// The token reader does not check separators, so the document is validated
// first.
func (jsonCodec) Decode(data []byte) (*pathmerge.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty JSON document: %w", io.ErrUnexpectedEOF)
	}
	if !json.Valid(data) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return nil, errors.New("invalid JSON document")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty JSON document: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	n, err := decodeJSON(dec, tok)
	if err != nil {
		return nil, err
	}

	if tok, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unexpected data after top-level value: %v", tok)
	}
	return n, nil
}

// decodeJSON builds the node starting with the already consumed token tok.
func decodeJSON(dec *json.Decoder, tok json.Token) (*pathmerge.Node, error) {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return decodeJSONObject(dec)
		case '[':
			return decodeJSONArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", rune(v))
		}
	case json.Number:
		return pathmerge.NewScalar(pathmerge.Number(v)), nil
	case string, bool, float64, nil:
		return pathmerge.NewScalar(v), nil
	default:
		return nil, fmt.Errorf("unexpected token %v (%T)", tok, tok)
	}
}

func decodeJSONObject(dec *json.Decoder) (*pathmerge.Node, error) {
	obj := pathmerge.NewObject()
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return obj, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key must be a string, got %v", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		value, err := decodeJSON(dec, tok)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		obj.Set(key, value)
	}
}

func decodeJSONArray(dec *json.Decoder) (*pathmerge.Node, error) {
	arr := pathmerge.NewArray()
	for i := 0; ; i++ {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			return arr, nil
		}
		item, err := decodeJSON(dec, tok)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		arr.Append(item)
	}
}

// Encode writes object fields in order. Pretty output is indented with two
// spaces.
func (jsonCodec) Encode(n *pathmerge.Node, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeJSON(&buf, n); err != nil {
		return nil, err
	}
	if !pretty {
		return buf.Bytes(), nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func encodeJSON(buf *bytes.Buffer, n *pathmerge.Node) error {
	switch n.Kind() {
	case pathmerge.ObjectKind:
		buf.WriteByte('{')
		for i, key := range n.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeJSONScalar(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			value, _ := n.Get(key)
			if err := encodeJSON(buf, value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
		buf.WriteByte('}')
	case pathmerge.ArrayKind:
		buf.WriteByte('[')
		for i, item := range n.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeJSON(buf, item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		if num, ok := n.Value().(pathmerge.Number); ok {
			buf.WriteString(string(num))
			return nil
		}
		return encodeJSONScalar(buf, n.Value())
	}
	return nil
}

func encodeJSONScalar(buf *bytes.Buffer, v any) error {
	data, err := json.MarshalWithOption(v, json.DisableHTMLEscape())
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
