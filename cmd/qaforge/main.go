// Command qaforge is the entry point for the QA knowledge-base pipeline.
// It extracts question/answer pairs from call transcripts with an LLM,
// indexes them into Qdrant, and serves retrieval-augmented answers over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/qaforge/qaforge/cmd/qaforge/commands"
)

func main() {
	// Load .env from the working directory before anything reads the
	// environment. Missing file is not an error.
	_ = godotenv.Load()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
