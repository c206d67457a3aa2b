package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ppiankov/mediclaim/internal/cli"
)

func main() {
	// A local .env is optional
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
