package main

import (
	"fmt"
	"os"

	"github.com/TualatinX/vitabit/cli"
)

func main() {
	if err := cli.New(os.Stdout).Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
