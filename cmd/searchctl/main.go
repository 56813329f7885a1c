// Command searchctl operates a running search service: filter
// configuration, indexing runs, cache purges and database migrations.
package main

import (
	"os"

	"github.com/utafrali/storefront-search/cmd/searchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
