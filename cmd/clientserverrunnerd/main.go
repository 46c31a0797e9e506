// Command clientserverrunnerd is the process supervisor's entrypoint.
package main

import (
	"os"

	"github.com/rorygraves/clientserverrunner/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
