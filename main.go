package main

import (
	"os"

	"github.com/BRAVO68WEB/devworld/cmd/devworld"
)

func main() {
	if err := devworld.Execute(); err != nil {
		os.Exit(1)
	}
}
