package main

import (
	"os"

	"github.com/g1mliii/anchored/internal/client/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
