package ctl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// readSecret prompts on w and reads the shared secret without echo when
// stdin is a terminal, or a single line from in otherwise.
func readSecret(in io.Reader, w io.Writer) ([]byte, error) {
	if f, ok := in.(*os.File); ok && isTerminal(int(f.Fd())) {
		if _, err := fmt.Fprint(w, "Shared secret: "); err != nil {
			return nil, err
		}
		secret, err := readPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return nil, err
		}
		return secret, nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, fmt.Errorf("read shared secret: %w", err)
	}
	return []byte(strings.TrimSpace(line)), nil
}
