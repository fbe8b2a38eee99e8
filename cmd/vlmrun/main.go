// Command vlmrun is the command-line interface to the VLM Run API.
package main

import (
	"os"

	"github.com/vlm-run/vlmrun-golang/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
