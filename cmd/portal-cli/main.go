// cmd/portal-cli/main.go
package main

import (
	"os"

	"applicant-portal/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		cli.Report(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
