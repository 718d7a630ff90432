package main

import (
	"os"

	"github.com/refset/account-health/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
