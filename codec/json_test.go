// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"errors"
	"io"
	"testing"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/google/go-cmp/cmp"

	"github.com/sam-fredrickson/pathmerge"
	"github.com/sam-fredrickson/pathmerge/codec"
)

func TestJSON_KeepsKeyOrder(t *testing.T) {
	n, err := codec.JSON.Decode([]byte(`{"z": 1, "a": {"y": 2, "b": 3}, "m": [ {"k": 1, "c": 2} ]}`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := codec.JSON.Encode(n, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"z":1,"a":{"y":2,"b":3},"m":[{"k":1,"c":2}]}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestJSON_NumbersKeepTheirText(t *testing.T) {
	input := `[1, 1.0, 1.50, -0, 1e10, 12345678901234567890, 0.1]`
	n, err := codec.JSON.Decode([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.Index(0).Value().(pathmerge.Number); !ok {
		t.Fatalf("expected Number, got %T", n.Index(0).Value())
	}
	out, err := codec.JSON.Encode(n, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `[1,1.0,1.50,-0,1e10,12345678901234567890,0.1]` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestJSON_Scalars(t *testing.T) {
	n, err := codec.JSON.Decode([]byte(`{"s": "<a & b>", "u": "héllo\n", "t": true, "f": false, "n": null}`))
	if err != nil {
		t.Fatal(err)
	}
	expected := map[string]any{"s": "<a & b>", "u": "héllo\n", "t": true, "f": false, "n": nil}
	if diff := cmp.Diff(expected, n.Interface()); diff != "" {
		t.Fatalf("unexpected tree (-want +got):\n%s", diff)
	}

	out, err := codec.JSON.Encode(n, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"s":"<a & b>","u":"héllo\n","t":true,"f":false,"n":null}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestJSON_Pretty(t *testing.T) {
	n, err := codec.JSON.Decode([]byte(`{"a":{"b":[1,{}],"c":[]}}`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := codec.JSON.Encode(n, true)
	if err != nil {
		t.Fatal(err)
	}
	expected := `{
  "a": {
    "b": [
      1,
      {}
    ],
    "c": []
  }
}`
	if string(out) != expected {
		t.Fatalf("unexpected output:\n%s", textDiff([]byte(expected), out))
	}
}

func TestJSON_DecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"whitespace", "  \n"},
		{"truncated object", `{"a": 1`},
		{"truncated array", `[1, 2`},
		{"trailing value", `{} []`},
		{"bare word", `nope`},
		{"trailing comma in object", `{"a":1,}`},
		{"trailing comma in array", `[1,]`},
		{"missing colon", `{"a" 1}`},
		{"missing comma", `[1 2]`},
		{"missing comma between fields", `{"a":1 "b":2}`},
		{"nested missing colon", `{"a": {"b" 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if n, err := codec.JSON.Decode([]byte(tt.input)); err == nil {
				t.Fatalf("expected error, got %s", n)
			}
		})
	}

	_, err := codec.JSON.Decode(nil)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF for empty input, got %v", err)
	}
}

func TestJSON_RootScalars(t *testing.T) {
	for _, input := range []string{`"text"`, `42`, `true`, `null`} {
		n, err := codec.JSON.Decode([]byte(input))
		if err != nil {
			t.Fatal(err)
		}
		out, err := codec.JSON.Encode(n, false)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != input {
			t.Errorf("round trip of %s gave %s", input, out)
		}
	}
}

// RFC 7386 merge patches agree with MERGE objects and REPLACE arrays as long
// as the patch holds no nulls.
func TestJSON_AgreesWithMergePatch(t *testing.T) {
	tests := []struct {
		base    string
		overlay string
	}{
		{`{"a": "b"}`, `{"a": "c"}`},
		{`{"a": "b"}`, `{"b": "c"}`},
		{`{"a": [{"b": "c"}]}`, `{"a": [1]}`},
		{`["a", "b"]`, `["c", "d"]`},
		{`{"a": "b"}`, `["c"]`},
		{`{"e": {"f": 1}}`, `{"a": {"bb": {"ccc": true}}, "e": {"g": 2}}`},
		{`{"title": "Hello", "author": {"givenName": "John", "familyName": "Doe"}, "tags": ["example", "sample"]}`,
			`{"title": "Hello!", "author": {"phoneNumber": "+01-123-456-7890"}, "tags": ["example"]}`},
	}

	cfg := pathmerge.Config{
		ObjectStrategy: pathmerge.StrategyMerge,
		ArrayStrategy:  pathmerge.StrategyReplace,
	}
	for _, tt := range tests {
		merged, err := pathmerge.MergeBytes(cfg, codec.JSON, []byte(tt.base), []byte(tt.overlay))
		if err != nil {
			t.Fatal(err)
		}
		patched, err := jsonpatch.MergePatch([]byte(tt.base), []byte(tt.overlay))
		if err != nil {
			t.Fatal(err)
		}

		got, err := codec.JSON.Decode(merged)
		if err != nil {
			t.Fatal(err)
		}
		want, err := codec.JSON.Decode(patched)
		if err != nil {
			t.Fatal(err)
		}
		// The patch library does not keep key order.
		if diff := cmp.Diff(want.Interface(), got.Interface()); diff != "" {
			t.Errorf("merge of %s onto %s disagrees with merge patch (-patch +merge):\n%s",
				tt.overlay, tt.base, diff)
		}
	}
}
