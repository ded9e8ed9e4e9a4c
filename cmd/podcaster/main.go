package main

import (
	"os"

	"github.com/lexiqai/podcast-studio/cmd/podcaster/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
