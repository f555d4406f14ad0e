// Package main provides the entry point for the greenscreen CLI.
package main

import "github.com/nevercjunderscore/greenscreenmethod/internal/cli"

func main() {
	cli.Main()
}
