package main

import "polymarket-pro/internal/cli"

func main() {
	cli.Execute()
}
