// Package main provides the entry point for the ruby-fast-lsp CLI.
package main

import (
	"os"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/cmd/ruby-fast-lsp/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
