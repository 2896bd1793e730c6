package main

import (
	"os"

	"github.com/shashankrm11/malscan/cmd/malscan/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
