package main

import (
	"github.com/joho/godotenv"

	"hybridrag/internal/cli"
)

func main() {
	// API keys may live in a local .env; a missing file is fine.
	_ = godotenv.Load()
	cli.Execute()
}
