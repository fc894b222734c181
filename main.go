package main

import "github.com/agentic-research/lumen/cmd"

func main() {
	cmd.Execute()
}
