// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sam-fredrickson/pathmerge"
	"github.com/sam-fredrickson/pathmerge/codec"
)

type options struct {
	configPath     string
	outputPath     string
	format         formatFlag
	pretty         bool
	objectStrategy strategyFlag
	arrayStrategy  strategyFlag
	rules          ruleFlags
	maxDepth       int
	verbose        bool
}

func newRootCmd(stdout io.Writer, log *logrus.Logger) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "pathmerge [flags] FILE...",
		Short: "Merge configuration files with per-path strategies",
		Long: `pathmerge merges configuration files (YAML, JSON, TOML) left to right.

Objects are merged field by field and lists are appended by default. Rules
change the strategy at exact paths: REPLACE, APPEND, or MERGE, which reconciles
list items by a key field.`,
		Example: `  # merge env-specific overlay into common base
  pathmerge -o config.yaml base.yaml env.yaml

  # merge lists of users by name and replace the list of tags
  pathmerge --rule users:merge:name --rule tags:replace base.yaml prod.yaml env.yaml

  # read strategies and rules from a file
  pathmerge -c merge.yaml -f json --pretty base.yaml env.yaml`,
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				log.SetLevel(logrus.DebugLevel)
			}

			var out bytes.Buffer
			if err := Run(cmd.Context(), log, opts, args, &out); err != nil {
				return err
			}
			if opts.outputPath == "" {
				_, err := stdout.Write(out.Bytes())
				return err
			}
			if err := os.WriteFile(opts.outputPath, out.Bytes(), 0o644); err != nil {
				return err
			}
			log.WithField("path", opts.outputPath).Debug("wrote merged document")
			return nil
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "merge config file (json, yaml or toml)")
	flags.StringVarP(&opts.outputPath, "out", "o", "", "output file path (defaults to stdout)")
	flags.VarP(&opts.format, "format", "f", "output format [json, yaml, toml] (defaults to first file's format)")
	flags.BoolVar(&opts.pretty, "pretty", false, "pretty-print the output")
	flags.Var(&opts.objectStrategy, "object-strategy", "strategy for objects without a rule [replace, merge] (default merge)")
	flags.Var(&opts.arrayStrategy, "array-strategy", "strategy for lists without a rule [replace, append, merge] (default append)")
	flags.Var(&opts.rules, "rule", "rule as PATH:STRATEGY[:KEYFIELD], may be repeated")
	flags.IntVar(&opts.maxDepth, "max-depth", 0, "reject documents nested deeper than this (0 means unlimited)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug information to stderr")

	return cmd
}

// Run merges files left to right and writes the encoded result to output.
func Run(ctx context.Context, log logrus.FieldLogger, opts options, files []string, output io.Writer) error {
	if len(files) == 0 {
		return errors.New("no files to merge")
	}

	cfg, err := loadConfig(log, opts)
	if err != nil {
		return err
	}
	merger, err := pathmerge.NewMerger(cfg)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"objectStrategy": cfg.ObjectStrategy,
		"arrayStrategy":  cfg.ArrayStrategy,
		"rules":          len(cfg.Rules),
	}).Debug("merge config")

	docs, codecs, err := readFiles(ctx, log, files, opts.maxDepth)
	if err != nil {
		return err
	}

	outputCodec := codecs[0]
	if opts.format != "" {
		if outputCodec, err = codec.ForName(string(opts.format)); err != nil {
			return err
		}
	}

	merged := docs[0]
	for i := 1; i < len(docs); i++ {
		if merged, err = merger.Merge(merged, docs[i]); err != nil {
			return fmt.Errorf("merge failed at %s: %w", files[i], err)
		}
		log.WithField("file", files[i]).Debug("merged")
	}

	encoded, err := outputCodec.Encode(merged, cfg.PrettyPrint)
	if err != nil {
		return fmt.Errorf("failed to encode result as %s: %w", outputCodec.Name(), err)
	}
	if !bytes.HasSuffix(encoded, []byte("\n")) {
		encoded = append(encoded, '\n')
	}
	if _, err := output.Write(encoded); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(log logrus.FieldLogger, opts options) (pathmerge.Config, error) {
	var cfg pathmerge.Config
	if opts.configPath != "" {
		c, err := codec.ForPath(opts.configPath)
		if err != nil {
			return cfg, err
		}
		data, err := os.ReadFile(opts.configPath)
		if err != nil {
			return cfg, err
		}
		if cfg, err = pathmerge.LoadConfig(c, data); err != nil {
			return cfg, fmt.Errorf("%s: %w", opts.configPath, err)
		}
		log.WithField("path", opts.configPath).Debug("loaded merge config")
	}

	if opts.pretty {
		cfg.PrettyPrint = true
	}
	if s := opts.objectStrategy.Strategy(); s != pathmerge.StrategyDefault {
		cfg.ObjectStrategy = s
	}
	if s := opts.arrayStrategy.Strategy(); s != pathmerge.StrategyDefault {
		cfg.ArrayStrategy = s
	}
	cfg.Rules = append(cfg.Rules, opts.rules...)
	return cfg, nil
}

// readFiles reads and decodes files concurrently. Results keep argument order.
func readFiles(ctx context.Context, log logrus.FieldLogger, files []string, maxDepth int) ([]*pathmerge.Node, []pathmerge.Codec, error) {
	docs := make([]*pathmerge.Node, len(files))
	codecs := make([]pathmerge.Codec, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := codec.ForPath(file)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			doc, err := c.Decode(data)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, &pathmerge.DecodeError{Err: err, Doc: min(i, pathmerge.DocOverlay)})
			}
			if depth := doc.Depth(); maxDepth > 0 && depth > maxDepth {
				return fmt.Errorf("%s: document depth %d exceeds --max-depth %d", file, depth, maxDepth)
			}
			log.WithFields(logrus.Fields{"file": file, "format": c.Name()}).Debug("decoded")
			docs[i], codecs[i] = doc, c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return docs, codecs, nil
}

// strategyFlag is a pflag.Value for merge strategies.
type strategyFlag pathmerge.Strategy

func (s *strategyFlag) String() string {
	if pathmerge.Strategy(*s) == pathmerge.StrategyDefault {
		return ""
	}
	return strings.ToLower(pathmerge.Strategy(*s).String())
}

func (s *strategyFlag) Set(value string) error {
	strategy, err := pathmerge.ParseStrategy(value)
	if err != nil {
		return err
	}
	*s = strategyFlag(strategy)
	return nil
}

func (s *strategyFlag) Type() string { return "strategy" }

func (s *strategyFlag) Strategy() pathmerge.Strategy {
	return pathmerge.Strategy(*s)
}

// ruleFlags collects repeated --rule flags.
type ruleFlags []pathmerge.Rule

func (r *ruleFlags) String() string {
	parts := make([]string, len(*r))
	for i, rule := range *r {
		parts[i] = rule.Path + ":" + strings.ToLower(rule.Strategy.String())
		if rule.KeyField != "" {
			parts[i] += ":" + rule.KeyField
		}
	}
	return strings.Join(parts, ",")
}

func (r *ruleFlags) Set(value string) error {
	rule, err := pathmerge.ParseRule(value)
	if err != nil {
		return err
	}
	*r = append(*r, rule)
	return nil
}

func (r *ruleFlags) Type() string { return "rule" }

// formatFlag is a pflag.Value for output formats.
type formatFlag string

func (f *formatFlag) String() string {
	return string(*f)
}

func (f *formatFlag) Set(value string) error {
	c, err := codec.ForName(value)
	if err != nil {
		return err
	}
	*f = formatFlag(c.Name())
	return nil
}

func (f *formatFlag) Type() string { return "format" }
