package lvm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedAction is returned for actions the dispatcher does not know.
var ErrUnsupportedAction = errors.New("unsupported action")

// CommandError reports an lvm invocation that exited non-zero. Its message
// is lvm's diagnostic output, verbatim.
type CommandError struct {
	Action   Action
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return fmt.Sprintf("lvm %s exited with code %d", e.Action, e.ExitCode)
}

// IsCommandError reports whether err carries a *CommandError.
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}
