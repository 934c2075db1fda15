package main

import "github.com/mcoot/soundboard-relay/internal/cli"

func main() {
	cli.Execute()
}
