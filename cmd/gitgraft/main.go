// Package main provides the entry point for the gitgraft CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitgraft/cmd/gitgraft/commands"
	"github.com/Sumatoshi-tech/gitgraft/pkg/pipeline"
	"github.com/Sumatoshi-tech/gitgraft/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd, err := commands.NewRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		if pipeline.IsFatal(err) {
			os.Exit(2)
		}

		os.Exit(1)
	}
}
