package main

import (
	"os"

	"github.com/imkarma/taskplan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
