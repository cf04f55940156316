// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for the Tripmaster backup tool.
//
// Usage:
//
//	go run . [flags]
//	./tripmaster [flags]
//
// See --help for the available commands.
package main

import (
	"log"
	"os"

	"github.com/voyagist/tripmaster/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("tripmaster error: %v", err)
		os.Exit(1)
	}
}
