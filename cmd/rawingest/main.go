package main

import (
	"os"

	"rawingest/cmd/rawingest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
