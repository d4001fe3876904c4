package speak

import "strings"

// sentenceBoundary returns the index of the first sentence terminator in
// s, or -1. A newline terminates a sentence on its own; punctuation only
// counts when followed by whitespace, and not at the very end of s while
// the stream is live because more text may follow (e.g. "3.5" split
// across fragments).
func sentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			return i
		case '.', '!', '?':
			if i+1 < len(s) {
				switch s[i+1] {
				case ' ', '\n', '\r', '\t':
					return i
				}
			}
		}
	}
	return -1
}

// Sentences converts a stream of text fragments into a stream of complete
// sentences. Fragments are accumulated until a sentence boundary appears;
// whatever remains when fragments closes is flushed as a final sentence.
// The returned channel is closed when the input is exhausted.
func Sentences(fragments <-chan string) <-chan string {
	out := make(chan string, 4)
	go func() {
		defer close(out)
		var buf strings.Builder
		for f := range fragments {
			buf.WriteString(f)
			for {
				idx := sentenceBoundary(buf.String())
				if idx < 0 {
					break
				}
				sentence := strings.TrimSpace(buf.String()[:idx+1])
				rest := buf.String()[idx+1:]
				buf.Reset()
				buf.WriteString(strings.TrimLeft(rest, " \t\n\r"))
				if sentence != "" {
					out <- sentence
				}
			}
		}
		if tail := strings.TrimSpace(buf.String()); tail != "" {
			out <- tail
		}
	}()
	return out
}
