package main

import (
	"os"

	"open-trivia-rounds/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
