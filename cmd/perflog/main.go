// perflog measures start-to-end times of performance events found in webOS
// PmLog files and systemd journals.
package main

import (
	"os"

	"github.com/pmtrace/perflog/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
