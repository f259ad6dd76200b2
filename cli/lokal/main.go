package main

import (
	"os"

	lokalcmder "github.com/papercomputeco/lokal/cmd/lokal"
)

func main() {
	cmd := lokalcmder.NewLokalCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
