package main

import "options-flow-scanner/internal/cli"

func main() {
	cli.Execute()
}
