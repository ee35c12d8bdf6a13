package main

import (
	"os"

	parlorcmder "github.com/papercomputeco/parlor/cmd/parlor"
)

func main() {
	cmd := parlorcmder.NewParlorCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
