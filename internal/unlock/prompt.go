package unlock

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TermPrompter reads passwords from a terminal without echo. When In is not a
// terminal (pipes, tests) it reads a plain line instead.
type TermPrompter struct {
	In  *os.File
	Out io.Writer

	lines *bufio.Reader
}

// NewTermPrompter prompts on stderr and reads from stdin.
func NewTermPrompter() *TermPrompter {
	return &TermPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TermPrompter) Prompt(message string) (string, error) {
	fmt.Fprint(p.Out, message)

	fd := int(p.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	if p.lines == nil {
		p.lines = bufio.NewReader(p.In)
	}
	line, err := p.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
