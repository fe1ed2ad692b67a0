package main

import (
	"nyfed-stress/internal/cli"
)

func main() {
	cli.Execute()
}
