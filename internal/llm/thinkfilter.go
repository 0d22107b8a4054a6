package llm

import "strings"

// Reasoning models interleave chain-of-thought inside XML-ish tags. The
// filter strips those regions from a delta stream before the text reaches
// the client, holding back just enough of each chunk to catch a tag split
// across chunk boundaries.
var thinkTags = []struct {
	open  string
	close string
}{
	{"<think>", "</think>"},
	{"<thinking>", "</thinking>"},
	{"<langchain>", "</langchain>"},
}

// ThinkFilter removes think-tag regions from streamed text and collapses
// runs of three or more newlines left behind by the removal. A zero value
// is ready to use. Not safe for concurrent use.
type ThinkFilter struct {
	buf      string
	inTag    bool
	closeTag string
	nlRun    int
}

// Write feeds one chunk to the filter and returns the text that is safe to
// emit so far. Text inside a tag region, and any suffix that could be the
// start of a tag, is withheld until a later Write or Flush settles it.
func (f *ThinkFilter) Write(chunk string) string {
	f.buf += chunk

	var out strings.Builder
	for {
		if f.inTag {
			idx := strings.Index(f.buf, f.closeTag)
			if idx < 0 {
				// Keep a tail that might hold the start of the close tag.
				if keep := len(f.closeTag) - 1; len(f.buf) > keep {
					f.buf = f.buf[len(f.buf)-keep:]
				}
				break
			}
			f.buf = f.buf[idx+len(f.closeTag):]
			f.inTag = false
			continue
		}

		openIdx, openTag := findFirstTag(f.buf, func(t struct{ open, close string }) string { return t.open })
		closeIdx, closeTag := findFirstTag(f.buf, func(t struct{ open, close string }) string { return t.close })

		// A close tag with no matching open means the model emitted a
		// truncated region. Drop everything through it.
		if closeIdx >= 0 && (openIdx < 0 || closeIdx < openIdx) {
			f.buf = f.buf[closeIdx+len(closeTag):]
			continue
		}

		if openIdx >= 0 {
			f.emit(f.buf[:openIdx], &out)
			f.buf = f.buf[openIdx+len(openTag):]
			f.inTag = true
			for _, t := range thinkTags {
				if t.open == openTag {
					f.closeTag = t.close
				}
			}
			continue
		}

		hold := f.partialTagStart()
		f.emit(f.buf[:hold], &out)
		f.buf = f.buf[hold:]
		break
	}
	return out.String()
}

// Flush returns whatever is still withheld. An unterminated tag region is
// discarded rather than leaked.
func (f *ThinkFilter) Flush() string {
	var out strings.Builder
	if !f.inTag {
		f.emit(f.buf, &out)
	}
	f.buf = ""
	f.inTag = false
	f.closeTag = ""
	return out.String()
}

// findFirstTag returns the position and text of the earliest tag selected
// by pick, or ("", -1) when none is present.
func findFirstTag(s string, pick func(struct{ open, close string }) string) (int, string) {
	pos, tag := -1, ""
	for _, t := range thinkTags {
		candidate := pick(t)
		if idx := strings.Index(s, candidate); idx >= 0 && (pos < 0 || idx < pos) {
			pos, tag = idx, candidate
		}
	}
	return pos, tag
}

// partialTagStart returns the offset from which the buffer suffix could be
// the beginning of an open or close tag, or len(buf) when it cannot.
func (f *ThinkFilter) partialTagStart() int {
	longest := 0
	for _, t := range thinkTags {
		if len(t.close) > longest {
			longest = len(t.close)
		}
	}

	for i := len(f.buf) - 1; i >= 0 && len(f.buf)-i < longest; i-- {
		if f.buf[i] != '<' {
			continue
		}
		suffix := f.buf[i:]
		for _, t := range thinkTags {
			if strings.HasPrefix(t.open, suffix) || strings.HasPrefix(t.close, suffix) {
				return i
			}
		}
	}
	return len(f.buf)
}

// emit writes s while collapsing newline runs of three or more down to two,
// tracking runs across chunk boundaries.
func (f *ThinkFilter) emit(s string, out *strings.Builder) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			f.nlRun++
			if f.nlRun <= 2 {
				out.WriteByte('\n')
			}
			continue
		}
		f.nlRun = 0
		out.WriteByte(s[i])
	}
}
