package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

var stdin = bufio.NewReader(os.Stdin)

// promptLine prints prompt and reads one trimmed line.
func promptLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// waitForRelease blocks until the user presses Enter. A closed stdin is an
// error so the preview is not reported as viewed.
func waitForRelease(r *bufio.Reader, w io.Writer) error {
	if _, err := promptLine(r, w, "Press Enter to release the preview..."); err != nil {
		return fmt.Errorf("waiting for release: %w", err)
	}
	return nil
}

// promptSecret reads a value without echo when stdin is a terminal and
// falls back to a plain line otherwise.
func promptSecret(w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(stdin, w, prompt)
	}
	fmt.Fprint(w, prompt)
	b, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// promptNewSecret asks twice and fails when the answers differ.
func promptNewSecret(w io.Writer, what string) (string, error) {
	first, err := promptSecret(w, fmt.Sprintf("New %s: ", what))
	if err != nil {
		return "", err
	}
	second, err := promptSecret(w, fmt.Sprintf("Repeat %s: ", what))
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("%ss do not match", what)
	}
	return first, nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(r *bufio.Reader, w io.Writer, question string) bool {
	answer, err := promptLine(r, w, question+" [y/N] ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}
