package bcp

import "bytes"

// lineFramer accumulates bytes read from the stream and splits them into
// '\n' terminated lines. Partial lines stay buffered between pushes.
type lineFramer struct {
	buf     []byte
	maxLine int
}

func newLineFramer(maxLine int) *lineFramer {
	return &lineFramer{maxLine: maxLine}
}

// push appends data and returns every complete line, without terminators.
// It returns ErrMessageTooLarge when the pending partial line exceeds maxLine.
func (f *lineFramer) push(data []byte) ([]string, error) {
	f.buf = append(f.buf, data...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(f.buf[:i], "\r")))
		f.buf = f.buf[i+1:]
	}

	if len(f.buf) == 0 {
		f.buf = nil
	} else if f.maxLine > 0 && len(f.buf) > f.maxLine {
		return lines, ErrMessageTooLarge
	}
	return lines, nil
}

// pending returns the number of buffered bytes that do not yet form a line.
func (f *lineFramer) pending() int {
	return len(f.buf)
}

// isComment reports whether a received line carries no message.
func isComment(line string) bool {
	return len(line) == 0 || line[0] == '#'
}
