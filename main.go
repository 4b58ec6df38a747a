package main

import (
	"os"

	"github.com/emilylaguna/codebase-analyzer-mcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
