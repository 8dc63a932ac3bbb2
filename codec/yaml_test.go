// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sam-fredrickson/pathmerge"
	"github.com/sam-fredrickson/pathmerge/codec"
)

func TestYAML_KeepsKeyOrder(t *testing.T) {
	n, err := codec.YAML.Decode([]byte(`
zeta: 1
alpha:
  yankee: 2
  bravo: 3
mike:
  - kilo: 1
    charlie: 2
`))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mike"}, n.Keys()); diff != "" {
		t.Fatalf("unexpected keys (-want +got):\n%s", diff)
	}
	alpha, _ := n.Get("alpha")
	if diff := cmp.Diff([]string{"yankee", "bravo"}, alpha.Keys()); diff != "" {
		t.Fatalf("unexpected nested keys (-want +got):\n%s", diff)
	}

	out, err := codec.YAML.Encode(n, false)
	if err != nil {
		t.Fatal(err)
	}
	back, err := codec.YAML.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(n) {
		t.Fatalf("round trip changed the tree:\n%s\n%s", n, back)
	}
	if strings.Index(string(out), "zeta") > strings.Index(string(out), "alpha") {
		t.Fatalf("output lost key order:\n%s", out)
	}
}

func TestYAML_Scalars(t *testing.T) {
	n, err := codec.YAML.Decode([]byte(`
str: hello
quoted: "123"
int: 42
neg: -7
float: 1.5
yes: true
nothing: null
tilde: ~
`))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key  string
		text string
	}{
		{"str", "hello"},
		{"quoted", "123"},
		{"int", "42"},
		{"neg", "-7"},
		{"float", "1.5"},
		{"yes", "true"},
		{"nothing", "null"},
		{"tilde", "null"},
	}
	for _, tt := range tests {
		v, ok := n.Get(tt.key)
		if !ok {
			t.Fatalf("missing key %s", tt.key)
		}
		if text, _ := v.Text(); text != tt.text {
			t.Errorf("%s: expected %q, got %q", tt.key, tt.text, text)
		}
	}

	quoted, _ := n.Get("quoted")
	if _, ok := quoted.Value().(string); !ok {
		t.Errorf("quoted number should stay a string, got %T", quoted.Value())
	}
}

func TestYAML_EmptyDocument(t *testing.T) {
	n, err := codec.YAML.Decode([]byte(""))
	if err != nil {
		t.Fatal(err)
	}
	if !n.IsNull() {
		t.Fatalf("expected null, got %s", n)
	}
}

func TestYAML_NonStringKeys(t *testing.T) {
	n, err := codec.YAML.Decode([]byte("1: one\ntrue: yes\n"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1", "true"}, n.Keys()); diff != "" {
		t.Fatalf("unexpected keys (-want +got):\n%s", diff)
	}
}

func TestYAML_EncodesJSONNumbers(t *testing.T) {
	n, err := codec.JSON.Decode([]byte(`{"i": 10, "f": 2.5}`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := codec.YAML.Encode(n, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "i: 10\nf: 2.5\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestYAML_OutOfRangeNumbersStayNumeric(t *testing.T) {
	n, err := codec.JSON.Decode([]byte(`{"big": 1e400, "small": -1e400}`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := codec.YAML.Encode(n, false)
	if err != nil {
		t.Fatal(err)
	}
	back, err := codec.YAML.Decode(out)
	if err != nil {
		t.Fatal(err)
	}
	for key, want := range map[string]float64{"big": math.Inf(1), "small": math.Inf(-1)} {
		v, _ := back.Get(key)
		if got, ok := v.Value().(float64); !ok || got != want {
			t.Errorf("%s: got %v (%T) from %q, want %v", key, v.Value(), v.Value(), out, want)
		}
	}
}

func TestYAML_Pretty(t *testing.T) {
	n := pathmerge.NewObject()
	list := pathmerge.NewArray(pathmerge.NewScalar("a"), pathmerge.NewScalar("b"))
	n.Set("list", list)

	compact, err := codec.YAML.Encode(n, false)
	if err != nil {
		t.Fatal(err)
	}
	if string(compact) != "list:\n- a\n- b\n" {
		t.Fatalf("unexpected compact output %q", compact)
	}

	pretty, err := codec.YAML.Encode(n, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(pretty) != "list:\n  - a\n  - b\n" {
		t.Fatalf("unexpected pretty output %q", pretty)
	}
}

func TestYAML_InvalidDocument(t *testing.T) {
	if _, err := codec.YAML.Decode([]byte("a: [1, 2\n")); err == nil {
		t.Fatal("expected error for unterminated flow sequence")
	}
}
