package main

import (
	"os"

	"github.com/conneroisu/tsxlive/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
