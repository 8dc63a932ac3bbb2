// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	log := newLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stdout, log).ExecuteContext(ctx)
	stop()
	if err != nil {
		writeError(os.Stderr, isTerminal(os.Stderr), err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return log
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeError prints err, in red when colored is set.
func writeError(w io.Writer, colored bool, err error) {
	msg := fmt.Sprintf("pathmerge: %v", err)
	if !colored {
		_, _ = fmt.Fprintln(w, msg)
		return
	}
	c := color.New(color.FgRed, color.Bold)
	c.EnableColor()
	_, _ = c.Fprintln(w, msg)
}
