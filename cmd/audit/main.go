package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	ctx := context.Background()
	root := newRootCmd(&flags{})
	if err := root.ExecuteContext(ctx); err != nil {
		var pe *policyError
		if errors.As(err, &pe) {
			os.Exit(pe.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// policyError is returned when the audit ran but the score is below the
// configured minimum. It carries the process exit code.
type policyError struct {
	score, min float64
	code       int
}

func (e *policyError) Error() string {
	return fmt.Sprintf("score %.1f below minimum %.0f", e.score, e.min)
}
