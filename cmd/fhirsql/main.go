// Command fhirsql compiles FHIRPath expressions to SQL and runs them on
// DuckDB or PostgreSQL.
package main

import (
	"os"

	"github.com/leapstack-labs/fhirsql/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
