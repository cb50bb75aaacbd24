package main

import (
	"fmt"
	"os"

	"github.com/roach88/stepd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "stepd:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
