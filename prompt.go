package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// confirm asks a yes/no question. On a terminal a single keypress answers;
// otherwise one line is read. Anything but y/yes declines.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		if state, err := term.MakeRaw(fd); err == nil {
			buf := make([]byte, 1)
			n, _ := f.Read(buf)
			term.Restore(fd, state)
			yes := n == 1 && (buf[0] == 'y' || buf[0] == 'Y')
			if yes {
				fmt.Fprintln(out, "y")
			} else {
				fmt.Fprintln(out, "n")
			}
			return yes
		}
	}

	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
