package main

import (
	"os"

	"github.com/reviewlens/reviewlens/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
