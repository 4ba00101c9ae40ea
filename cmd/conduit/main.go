package main

import (
	"os"

	"github.com/docshare/conduit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
