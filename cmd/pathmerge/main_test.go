// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sam-fredrickson/pathmerge"
	"github.com/sam-fredrickson/pathmerge/codec"
)

func quietLogger() *logrus.Logger {
	return newLogger(io.Discard)
}

// normalize decodes output in the given format and re-reads it as generic
// JSON values, so results from different formats compare equal.
func normalize(t *testing.T, format string, output []byte) any {
	t.Helper()
	c, err := codec.ForName(format)
	require.NoError(t, err)
	n, err := c.Decode(output)
	require.NoError(t, err, "output:\n%s", output)
	data, err := codec.JSON.Encode(n, false)
	require.NoError(t, err)
	var v any
	require.NoError(t, codec.JSON.Unmarshal(data, &v))
	return v
}

func readExpected(t *testing.T) any {
	t.Helper()
	data, err := os.ReadFile("testfiles/expected.json")
	require.NoError(t, err)
	var v any
	require.NoError(t, codec.JSON.Unmarshal(data, &v))
	return v
}

func TestRunMergeFormats(t *testing.T) {
	expected := readExpected(t)

	tests := []struct {
		name         string
		baseFile     string
		overlayFile  string
		outputFormat formatFlag
		wantFormat   string
	}{
		// Same-format tests
		{"yaml to yaml", "testfiles/base.yaml", "testfiles/overlay.yaml", "yaml", "yaml"},
		{"yaml to json", "testfiles/base.yaml", "testfiles/overlay.yaml", "json", "json"},
		{"yaml to toml", "testfiles/base.yaml", "testfiles/overlay.yaml", "toml", "toml"},
		{"json to yaml", "testfiles/base.json", "testfiles/overlay.json", "yaml", "yaml"},
		{"json to json", "testfiles/base.json", "testfiles/overlay.json", "json", "json"},
		{"json to toml", "testfiles/base.json", "testfiles/overlay.json", "toml", "toml"},
		{"toml to yaml", "testfiles/base.toml", "testfiles/overlay.toml", "yaml", "yaml"},
		{"toml to json", "testfiles/base.toml", "testfiles/overlay.toml", "json", "json"},
		{"toml to toml", "testfiles/base.toml", "testfiles/overlay.toml", "toml", "toml"},

		// Cross-format merge tests (mix different input formats)
		{"yaml base, json overlay to yaml", "testfiles/base.yaml", "testfiles/overlay.json", "yaml", "yaml"},
		{"json base, yaml overlay to json", "testfiles/base.json", "testfiles/overlay.yaml", "json", "json"},
		{"yaml base, toml overlay to toml", "testfiles/base.yaml", "testfiles/overlay.toml", "toml", "toml"},
		{"toml base, json overlay to json", "testfiles/base.toml", "testfiles/overlay.json", "json", "json"},

		// Output format defaults to the first file's
		{"default format", "testfiles/base.toml", "testfiles/overlay.yaml", "", "toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options{configPath: "testfiles/config.yaml", format: tt.outputFormat}
			var output bytes.Buffer
			err := Run(context.Background(), quietLogger(), opts, []string{tt.baseFile, tt.overlayFile}, &output)
			require.NoError(t, err)
			require.Equal(t, expected, normalize(t, tt.wantFormat, output.Bytes()))
		})
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	opts := options{configPath: "testfiles/config.yaml", format: "json"}
	require.NoError(t, opts.arrayStrategy.Set("replace"))

	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), opts,
		[]string{"testfiles/base.yaml", "testfiles/overlay.yaml"}, &output)
	require.NoError(t, err)

	result := normalize(t, "json", output.Bytes()).(map[string]any)
	require.Equal(t, []any{"metrics"}, result["features"])
	// The config file's rule still applies to users.
	require.Equal(t, []any{map[string]any{"name": "alice", "role": "admin"}}, result["users"])
}

func TestRunRuleFlags(t *testing.T) {
	var opts options
	require.NoError(t, opts.rules.Set("users:merge:name"))
	require.NoError(t, opts.rules.Set("features:replace"))
	require.NoError(t, opts.format.Set("JSON"))

	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), opts,
		[]string{"testfiles/base.yaml", "testfiles/overlay.yaml", "testfiles/prod.yaml"}, &output)
	require.NoError(t, err)

	expected := map[string]any{
		"name": "app",
		"server": map[string]any{
			"host": "prod.example.com",
			"port": float64(9090),
			"tls":  true,
		},
		"features": []any{"audit"},
		"users": []any{
			map[string]any{"name": "alice", "role": "admin"},
			map[string]any{"name": "carol", "role": "user"},
		},
	}
	require.Equal(t, expected, normalize(t, "json", output.Bytes()))
}

func TestRunPretty(t *testing.T) {
	opts := options{pretty: true, format: "json"}
	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), opts,
		[]string{"testfiles/overlay.json", "testfiles/overlay.json"}, &output)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(output.String(), "{\n  \"server\": {\n"), output.String())
	require.True(t, strings.HasSuffix(output.String(), "}\n"))
}

func TestRunSingleFile(t *testing.T) {
	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), options{format: "json"},
		[]string{"testfiles/base.json"}, &output)
	require.NoError(t, err)
	require.Equal(t,
		`{"name":"app","server":{"host":"localhost","port":8080},"features":["auth"],"users":[{"name":"alice","role":"user"},{"name":"bob","role":"user"}]}`+"\n",
		output.String())
}

func TestRunMissingFiles(t *testing.T) {
	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), options{}, []string{}, &output)
	require.ErrorContains(t, err, "no files")
}

func TestRunFileNotFound(t *testing.T) {
	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), options{}, []string{"nonexistent.yaml"}, &output)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Zero(t, output.Len())
}

func TestRunUnknownExtension(t *testing.T) {
	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), options{}, []string{"testfiles/base.yaml", "notes.txt"}, &output)
	require.ErrorIs(t, err, codec.ErrUnknownFormat)
}

func TestRunDecodeError(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"a": `), 0o600))

	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), options{}, []string{"testfiles/base.json", broken}, &output)
	require.ErrorIs(t, err, pathmerge.ErrDecode)
	require.ErrorContains(t, err, broken)

	var decodeErr *pathmerge.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Equal(t, pathmerge.DocOverlay, decodeErr.Doc)
}

func TestRunStrategyError(t *testing.T) {
	var opts options
	require.NoError(t, opts.arrayStrategy.Set("merge"))

	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), opts,
		[]string{"testfiles/base.yaml", "testfiles/overlay.yaml"}, &output)
	require.ErrorIs(t, err, pathmerge.ErrStrategy)
	require.ErrorContains(t, err, "missing rule for 'MERGE' strategy at features")
}

func TestRunMaxDepth(t *testing.T) {
	files := []string{"testfiles/base.yaml", "testfiles/overlay.yaml"}

	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), options{maxDepth: 2}, files, &output)
	require.ErrorContains(t, err, "exceeds --max-depth 2")

	output.Reset()
	require.NoError(t, Run(context.Background(), quietLogger(), options{maxDepth: 4}, files, &output))
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var output bytes.Buffer
	err := Run(ctx, quietLogger(), options{}, []string{"testfiles/base.yaml", "testfiles/overlay.yaml"}, &output)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunInvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "merge.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"arrayStrategy": "sideways"}`), 0o600))

	var output bytes.Buffer
	err := Run(context.Background(), quietLogger(), options{configPath: cfgPath},
		[]string{"testfiles/base.yaml"}, &output)
	require.ErrorIs(t, err, pathmerge.ErrInvalidConfig)
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "merged.json")

	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout, quietLogger())
	cmd.SetArgs([]string{
		"-c", "testfiles/config.yaml",
		"-o", outPath,
		"--format", "json",
		"--verbose",
		"testfiles/base.yaml", "testfiles/overlay.yaml",
	})
	require.NoError(t, cmd.Execute())
	require.Zero(t, stdout.Len())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, readExpected(t), normalize(t, "json", data))
}

func TestRootCommandStdout(t *testing.T) {
	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout, quietLogger())
	cmd.SetArgs([]string{"--rule", "users:merge:name", "-f", "yaml", "testfiles/base.json", "testfiles/overlay.json"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, readExpected(t), normalize(t, "yaml", stdout.Bytes()))
}

func TestRootCommandFlagErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"--format", "xml", "testfiles/base.yaml"},
		{"--array-strategy", "dedup", "testfiles/base.yaml"},
		{"--rule", "users", "testfiles/base.yaml"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			cmd := newRootCmd(io.Discard, quietLogger())
			cmd.SetArgs(args)
			cmd.SetErr(io.Discard)
			require.Error(t, cmd.Execute())
		})
	}
}

func TestRootCommandVersion(t *testing.T) {
	var stdout bytes.Buffer
	cmd := newRootCmd(io.Discard, quietLogger())
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, version+"\n", stdout.String())
}

func TestFlagValues(t *testing.T) {
	var s strategyFlag
	require.Equal(t, "", s.String())
	require.NoError(t, s.Set("APPEND"))
	require.Equal(t, "append", s.String())
	require.Equal(t, pathmerge.StrategyAppend, s.Strategy())
	require.Error(t, s.Set("dedup"))

	var r ruleFlags
	require.NoError(t, r.Set("users:merge:name"))
	require.NoError(t, r.Set(":replace"))
	require.Equal(t, "users:merge:name,:replace", r.String())

	var f formatFlag
	require.NoError(t, f.Set("yml"))
	require.Equal(t, "yaml", f.String())
	require.ErrorIs(t, f.Set("xml"), codec.ErrUnknownFormat)
}

func TestWriteError(t *testing.T) {
	var plain bytes.Buffer
	writeError(&plain, false, errors.New("boom"))
	require.Equal(t, "pathmerge: boom\n", plain.String())

	var colored bytes.Buffer
	writeError(&colored, true, errors.New("boom"))
	require.Contains(t, colored.String(), "\x1b[")
	require.Contains(t, colored.String(), "pathmerge: boom")
}
