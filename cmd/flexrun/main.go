package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"flexrun/internal/cli"
)

// main is a thin boundary: it canonicalizes all CLI inputs into an Invocation
// before any engine logic is invoked, and translates outcomes to exit codes.
func main() {
	inv, err := cli.ParseInvocation(os.Args[1:])
	if err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
			os.Exit(invErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternalError)
	}

	result, execErr := cli.Execute(context.Background(), inv, cli.Stdio{})
	if execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
	}
	os.Exit(result.ExitCode)
}
