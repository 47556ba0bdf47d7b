package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"
)

type interactiveCtxKeyType struct{}

var interactiveCtxKey = interactiveCtxKeyType{}

// isInteractiveEnvironment reports whether stdout is a terminal a person is looking at.
func isInteractiveEnvironment() bool {
	if os.Getenv("CI") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func withInteractive(ctx context.Context, interactive bool) context.Context {
	return context.WithValue(ctx, interactiveCtxKey, interactive)
}

func isInteractive(ctx context.Context) bool {
	interactive, ok := ctx.Value(interactiveCtxKey).(bool)
	if !ok {
		return false
	}
	return interactive
}

// checkBinaryStdout refuses to dump an archive onto a terminal unless forced.
func checkBinaryStdout(ctx context.Context, force bool) error {
	if force || !isInteractive(ctx) {
		return nil
	}
	return fmt.Errorf("refusing to write a binary archive to a terminal: redirect stdout, set --output or pass --force")
}
