package tunnel

import (
	"bufio"
	"io"
)

// streamLines reads r line by line (splitting on \n or \r\n, flushing
// any unterminated residue at EOF) and invokes onLine for each. It
// returns once r is exhausted or yields a non-EOF error.
func streamLines(r io.Reader, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
}
