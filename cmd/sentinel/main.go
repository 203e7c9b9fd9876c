package main

import (
	"feed-sentinel/internal/cli"
)

func main() {
	cli.Execute()
}
