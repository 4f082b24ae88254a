package main

import (
	"log"

	"github.com/joho/godotenv"

	"mathforge/internal/cli"
	"mathforge/internal/logger"
)

func main() {
	// .env is optional; API keys may come from the real environment.
	_ = godotenv.Load()

	if err := logger.Init("mathforge.log"); err != nil {
		log.Fatalf("Fatal Error: Could not initialize logger: %v", err)
	}

	cli.Execute()
}
