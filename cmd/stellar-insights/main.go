package main

import "stellar-insights/internal/cli"

func main() {
	cli.Execute()
}
