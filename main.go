package main

import (
	"spot-perp-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
