// Command dvmigrate drives the migration engine from the command line:
// it loads a connections file and an archive directory, then runs one of
// import, plan, or validate against the configured target tenants.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
