package main

import (
	"os"

	"github.com/docsage/docsage/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
