package main

import (
	"os"

	"github.com/chase3718/opl3relay/internal/cli"
)

func main() {
	if err := cli.Run(); err != nil {
		os.Exit(1)
	}
}
