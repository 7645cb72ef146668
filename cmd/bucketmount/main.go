package main

import (
	"os"

	// Import init package first to resolve the default config file before the CLI reads it
	_ "github.com/beam-cloud/bucketmount/internal/init"

	"github.com/beam-cloud/bucketmount/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
