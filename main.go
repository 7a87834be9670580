package main

import (
	"os"

	"github.com/igorsilveira/tokenlens/cmd/tokenlens"
)

func main() {
	if err := tokenlens.Execute(); err != nil {
		os.Exit(1)
	}
}
