package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/andy/tally/internal/domain"
)

// Exit codes by error kind.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitNotFound   = 3
	ExitBadRequest = 4
	ExitConflict   = 5
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, domain.ErrBadRequest):
		return ExitBadRequest
	case errors.Is(err, domain.ErrConflict):
		return ExitConflict
	}
	return ExitFailure
}

// PrintError writes err to w in the CLI's error style.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("error:")+" "+err.Error())
}
