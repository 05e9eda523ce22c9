// Package main is the entry point for the carina CLI.
package main

import (
	"github.com/carina-iac/carina/cmd/carina/commands"
)

func main() {
	commands.Execute()
}
