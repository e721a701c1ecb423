package main

import (
	"os"

	"github.com/hannajonsd/lockmender/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(2)
	}
}
