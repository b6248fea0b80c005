// ABOUTME: Extracts an HTML document from model output, either complete or still streaming.
// ABOUTME: Understands html-tagged fences, untagged fences holding a document, and raw unfenced documents.

package extract

import (
	"regexp"
	"strings"
)

const fence = "```"

var (
	// docStart finds the first document-type or root-element marker.
	docStart = regexp.MustCompile(`(?i)<!doctype\s+html|<html[\s>]`)
	// docEnd finds the closing root element.
	docEnd = regexp.MustCompile(`(?i)</html\s*>`)
	// trailingTicks is a closing fence that has only partially arrived.
	trailingTicks = regexp.MustCompile("`+$")
)

// Block is one fenced region of model output.
type Block struct {
	Tag      string // language tag, lower-cased; empty when untagged
	Interior string
	Closed   bool
	start    int // offset of the opening fence
	end      int // offset just past the closing fence, or len(text)
}

// Blocks scans text for fenced regions in order. An opening fence whose tag
// line has not finished arriving ends the scan.
func Blocks(text string) []Block {
	var blocks []Block
	pos := 0
	for pos < len(text) {
		open := strings.Index(text[pos:], fence)
		if open < 0 {
			break
		}
		open += pos
		nl := strings.IndexByte(text[open+len(fence):], '\n')
		if nl < 0 {
			break
		}
		tagEnd := open + len(fence) + nl
		b := Block{
			Tag:   strings.ToLower(strings.TrimSpace(text[open+len(fence) : tagEnd])),
			start: open,
		}
		body := tagEnd + 1
		if end := strings.Index(text[body:], fence); end >= 0 {
			b.Interior = text[body : body+end]
			b.Closed = true
			b.end = body + end + len(fence)
		} else {
			b.Interior = text[body:]
			b.end = len(text)
		}
		blocks = append(blocks, b)
		pos = b.end
	}
	return blocks
}

// Complete returns the finished document embedded in text, if any.
func Complete(text string) (string, bool) {
	blocks := Blocks(text)
	if b, ok := find(blocks, isTagged); ok && b.Closed {
		return strings.TrimSpace(b.Interior), true
	}
	if b, ok := find(blocks, isDocumentBlock); ok && b.Closed {
		return strings.TrimSpace(b.Interior), true
	}
	if doc, closed, ok := rawDocument(outside(text, blocks)); ok && closed {
		return doc, true
	}
	return "", false
}

// Partial returns the best renderable document available so far: a
// complete one when possible, otherwise the trailing interior of an
// unterminated fence or raw document. Results only grow as text grows.
func Partial(text string) (string, bool) {
	if doc, ok := Complete(text); ok {
		return doc, true
	}
	blocks := Blocks(text)
	if b, ok := find(blocks, isTagged); ok && !b.Closed {
		return trimPartial(b.Interior)
	}
	if b, ok := find(blocks, isDocumentBlock); ok && !b.Closed {
		return trimPartial(b.Interior)
	}
	if doc, _, ok := rawDocument(outside(text, blocks)); ok {
		return trimPartial(doc)
	}
	return "", false
}

// Prose returns text with fenced blocks and any raw document removed, for
// the chat transcript.
func Prose(text string) string {
	out := outside(text, Blocks(text))
	if loc := docStart.FindStringIndex(out); loc != nil {
		tail := ""
		if end := docEnd.FindStringIndex(out[loc[0]:]); end != nil {
			tail = out[loc[0]+end[1]:]
		}
		out = out[:loc[0]] + tail
	}
	return strings.TrimSpace(out)
}

// outside returns text with every fenced block removed, stopping at a
// fence whose tag line is still arriving. A raw document may sit in the
// prose around other snippets, e.g. before a trailing css fence.
func outside(text string, blocks []Block) string {
	var b strings.Builder
	pos := 0
	for _, blk := range blocks {
		b.WriteString(text[pos:blk.start])
		pos = blk.end
	}
	if pos < len(text) {
		rest := text[pos:]
		if i := strings.Index(rest, fence); i >= 0 {
			rest = rest[:i]
		}
		b.WriteString(rest)
	}
	return b.String()
}

func find(blocks []Block, match func(Block) bool) (Block, bool) {
	for _, b := range blocks {
		if match(b) {
			return b, true
		}
	}
	return Block{}, false
}

func isTagged(b Block) bool { return b.Tag == "html" }

// isDocumentBlock accepts untagged fences only once a document marker has
// arrived, so prose or other code never flashes into the preview.
func isDocumentBlock(b Block) bool {
	return b.Tag == "" && docStart.MatchString(b.Interior)
}

// rawDocument finds an unfenced document. closed reports whether </html> was seen.
func rawDocument(text string) (doc string, closed bool, ok bool) {
	start := docStart.FindStringIndex(text)
	if start == nil {
		return "", false, false
	}
	rest := text[start[0]:]
	if end := docEnd.FindStringIndex(rest); end != nil {
		return strings.TrimSpace(rest[:end[1]]), true, true
	}
	return rest, false, true
}

func trimPartial(s string) (string, bool) {
	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimSpace(trailingTicks.ReplaceAllString(s, ""))
	if s == "" {
		return "", false
	}
	return s, true
}
