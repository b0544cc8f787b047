package main

import (
	"fmt"
	"os"

	"github.com/raysh454/sitedrop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sitedrop:", err)
		os.Exit(1)
	}
}
