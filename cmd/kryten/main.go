package main

import (
	"fmt"
	"os"

	"github.com/kryten-bot/kryten/cmd/kryten/commands"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	rootCmd := commands.NewRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
