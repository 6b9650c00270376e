package main

import (
	"os"
	_ "time/tzdata"

	"cajaclaro/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
