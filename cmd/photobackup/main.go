package main

import (
	"photobackup/internal/cli"
)

func main() {
	cli.Execute()
}
