package main

import (
	"os"

	"github.com/sora-lab/inga-quant/cmd/inga/commands"
)

// main is the entry point for the inga-quant CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/inga [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
