// Command bookrec recommends books from a catalog using retrieval-augmented
// generation. It answers one-off requests from the terminal, builds the
// vector index, and serves the recommender over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/BiancaGL2104/rag-book-recommender/cmd/bookrec/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
