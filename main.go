// Package main is the entry point for the harvest CLI.
package main

import "github.com/agentic-research/harvest/cmd"

func main() {
	cmd.Execute()
}
