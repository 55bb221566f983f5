package proc

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// maxInterpreterDepth bounds shebang recursion so a script that names itself
// as its interpreter cannot loop forever.
const maxInterpreterDepth = 8

// ResolveInterpreters returns the interpreter chain of a script: the shebang
// interpreter of path, then the interpreter of that interpreter if it is
// itself a script, and so on. A binary (or unreadable) target yields nil.
// Each chain entry is the interpreter path plus its single optional argument.
func ResolveInterpreters(path string) []string {
	var chain []string
	for i := 0; i < maxInterpreterDepth; i++ {
		interp, arg, ok := readShebang(path)
		if !ok {
			break
		}
		entry := interp
		if arg != "" {
			entry = interp + " " + arg
		}
		chain = append(chain, entry)
		path = interp
	}
	return chain
}

// readShebang parses the #! first line of a file. The kernel splits at most
// one argument after the interpreter path; everything past the first blank
// run is that single argument, whitespace-trimmed.
func readShebang(path string) (interp, arg string, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", false
	}
	defer f.Close()

	r := bufio.NewReader(f)
	head := make([]byte, 2)
	if _, err := io.ReadFull(r, head); err != nil || head[0] != '#' || head[1] != '!' {
		return "", "", false
	}

	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", "", false
	}
	line = strings.ReplaceAll(line, "\t", " ")
	line = strings.TrimSpace(strings.TrimSuffix(line, "\n"))
	if line == "" {
		return "", "", false
	}

	interp, arg, _ = strings.Cut(line, " ")
	return interp, strings.TrimSpace(arg), interp != ""
}
