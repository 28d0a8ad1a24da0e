package cli

import (
	"fmt"
	"os"

	ferrors "github.com/randalmurphal/famplan/internal/errors"
)

// PrintError prints an error to stderr. Typed errors use their user
// message; with --verbose the code and cause follow.
func PrintError(err error) {
	if fe := ferrors.AsFamplanError(err); fe != nil {
		fmt.Fprintln(os.Stderr, fe.UserMessage())
		if verbose {
			fmt.Fprintf(os.Stderr, "\nCode: %s\n", fe.Code)
			if fe.Cause != nil {
				fmt.Fprintf(os.Stderr, "Cause: %v\n", fe.Cause)
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
