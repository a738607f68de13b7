package main

import (
	"os"

	"github.com/uniquestream/packagekit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
