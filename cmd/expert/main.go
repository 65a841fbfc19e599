// Package main provides the entry point for the expert CLI.
package main

import (
	"fmt"
	"os"

	"github.com/dominicdesy/intelia-expert-sub011/cmd/expert/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
