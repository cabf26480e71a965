package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := Run(os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "marketplace: %v\n", err)
		os.Exit(1)
	}
}
