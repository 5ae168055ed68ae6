package main

import (
	"os"

	"github.com/pkrishnath/AI-Trader/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		cli.DisplayError(err)
		os.Exit(1)
	}
}
