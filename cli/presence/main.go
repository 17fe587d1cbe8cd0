package main

import (
	"os"

	presencecmder "github.com/papercomputeco/presence/cmd/presence"
)

func main() {
	cmd := presencecmder.NewPresenceCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
