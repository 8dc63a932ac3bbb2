// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("PATHMERGE_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	// Read ResourceList from stdin, write to stdout
	if err := Run(log, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pathmerge-krm:", err)
		os.Exit(1)
	}
}
