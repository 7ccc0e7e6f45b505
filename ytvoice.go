package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/neboloop/ytvoice/cmd/ytvoice"
	"github.com/neboloop/ytvoice/internal/config"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	c, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cli.SetupRootCmd(c).Execute(); err != nil {
		os.Exit(1)
	}
}
