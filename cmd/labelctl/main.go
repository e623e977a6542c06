// Command labelctl exercises the nutrition label pipeline from a terminal:
// it prints the prompt and schema sent to the model, normalises saved model
// answers and runs live extractions against the configured provider.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
