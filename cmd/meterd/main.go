package main

import "energy-meter/internal/cli"

func main() {
	cli.Execute()
}
