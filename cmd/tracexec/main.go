package main

import (
	"os"

	"github.com/orhun/tracexec/cmd/tracexec/cli"
)

func main() {
	os.Exit(cli.Execute())
}
