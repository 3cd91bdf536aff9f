// Package segment splits raw documentation text into hierarchical chunks.
//
// Headings (ATX "# Title" and underlined "Title\n====") open sections and
// extend the section path. Section bodies are split on blank-line
// paragraphs and packed into chunks of at most MaxWords words. Fenced code
// blocks are never split.
package segment

import (
	"regexp"
	"strings"

	"github.com/kalambet/keydocs/internal/docs"
)

const (
	DefaultMaxWords = 300
	DefaultMinWords = 20

	maxTitleLen      = 80
	keywordsPerChunk = 8
)

// Segmenter holds chunk sizing limits. The zero value uses the defaults.
type Segmenter struct {
	MaxWords int
	MinWords int
}

// New returns a Segmenter with default limits.
func New() Segmenter {
	return Segmenter{MaxWords: DefaultMaxWords, MinWords: DefaultMinWords}
}

var (
	atxHeading   = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	setextLevel1 = regexp.MustCompile(`^=+\s*$`)
	setextLevel2 = regexp.MustCompile(`^-{2,}\s*$`)
)

type block struct {
	text      string
	words     int
	lineStart int
	lineEnd   int
	code      bool
}

type section struct {
	title  string
	level  int
	path   []string
	blocks []block
}

type heading struct {
	level int
	title string
}

// Segment splits text into chunks. basePath prefixes every chunk's section
// path. Returned chunks carry Index in document order, Title, Content,
// SectionPath and Metadata (word count, line span, content type,
// importance, keywords). IDs and library ids are left for the store.
func (s Segmenter) Segment(text string, basePath []string) []docs.Chunk {
	s = s.withDefaults()
	sections := parse(text, basePath)

	var chunks []docs.Chunk
	for _, sec := range sections {
		for _, piece := range s.pack(sec.blocks) {
			chunks = append(chunks, s.buildChunk(sec, piece, len(chunks)))
		}
	}
	return chunks
}

func (s Segmenter) withDefaults() Segmenter {
	if s.MaxWords <= 0 {
		s.MaxWords = DefaultMaxWords
	}
	if s.MinWords <= 0 {
		s.MinWords = DefaultMinWords
	}
	if s.MinWords > s.MaxWords {
		s.MinWords = s.MaxWords
	}
	return s
}

// parse walks text line by line and groups paragraphs under headings.
func parse(text string, basePath []string) []section {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		sections []section
		stack    []heading
		cur      = section{path: clonePath(basePath, nil)}
		para     []string
		paraFrom int
		inFence  bool
		fence    string
	)

	flush := func(end int, code bool) {
		if len(para) == 0 {
			return
		}
		body := strings.Join(para, "\n")
		if strings.TrimSpace(body) != "" {
			cur.blocks = append(cur.blocks, block{
				text:      body,
				words:     docs.WordCount(body),
				lineStart: paraFrom,
				lineEnd:   end,
				code:      code,
			})
		}
		para = nil
	}
	openSection := func(level int, title string) {
		if len(cur.blocks) > 0 {
			sections = append(sections, cur)
		}
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, heading{level: level, title: title})
		cur = section{title: title, level: level, path: clonePath(basePath, stack)}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if inFence {
			para = append(para, line)
			if strings.HasPrefix(trimmed, fence) {
				inFence = false
				flush(lineNo, true)
			}
			continue
		}

		if f := fenceMarker(trimmed); f != "" {
			flush(lineNo-1, false)
			inFence, fence = true, f
			para, paraFrom = []string{line}, lineNo
			continue
		}

		if m := atxHeading.FindStringSubmatch(trimmed); m != nil {
			flush(lineNo-1, false)
			openSection(len(m[1]), m[2])
			continue
		}

		if trimmed != "" && len(para) == 0 && i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			level := 0
			switch {
			case setextLevel1.MatchString(next):
				level = 1
			case setextLevel2.MatchString(next):
				level = 2
			}
			if level > 0 {
				openSection(level, trimmed)
				i++
				continue
			}
		}

		if trimmed == "" {
			flush(lineNo-1, false)
			continue
		}
		if len(para) == 0 {
			paraFrom = lineNo
		}
		para = append(para, line)
	}
	// An unterminated fence still counts as code.
	flush(len(lines), inFence)
	if len(cur.blocks) > 0 {
		sections = append(sections, cur)
	}
	return sections
}

func fenceMarker(trimmed string) string {
	switch {
	case strings.HasPrefix(trimmed, "```"):
		return "```"
	case strings.HasPrefix(trimmed, "~~~"):
		return "~~~"
	}
	return ""
}

func clonePath(base []string, stack []heading) []string {
	if len(base)+len(stack) == 0 {
		return nil
	}
	out := make([]string, 0, len(base)+len(stack))
	out = append(out, base...)
	for _, h := range stack {
		out = append(out, h.title)
	}
	return out
}

// pack groups blocks into pieces of at most MaxWords words. Oversized prose
// paragraphs are split on word boundaries; code blocks are kept whole. A
// trailing piece shorter than MinWords is merged into the one before it.
func (s Segmenter) pack(blocks []block) [][]block {
	var (
		pieces [][]block
		cur    []block
		words  int
	)
	emit := func() {
		if len(cur) > 0 {
			pieces = append(pieces, cur)
		}
		cur, words = nil, 0
	}

	for _, b := range blocks {
		if !b.code && b.words > s.MaxWords {
			emit()
			for _, part := range splitWords(b, s.MaxWords) {
				pieces = append(pieces, []block{part})
			}
			continue
		}
		if words > 0 && words+b.words > s.MaxWords {
			emit()
		}
		cur = append(cur, b)
		words += b.words
	}
	emit()

	if n := len(pieces); n > 1 && blockWords(pieces[n-1]) < s.MinWords {
		pieces[n-2] = append(pieces[n-2], pieces[n-1]...)
		pieces = pieces[:n-1]
	}
	return pieces
}

func splitWords(b block, limit int) []block {
	fields := strings.Fields(b.text)
	var out []block
	for start := 0; start < len(fields); start += limit {
		end := min(start+limit, len(fields))
		out = append(out, block{
			text:      strings.Join(fields[start:end], " "),
			words:     end - start,
			lineStart: b.lineStart,
			lineEnd:   b.lineEnd,
		})
	}
	return out
}

func blockWords(bs []block) int {
	n := 0
	for _, b := range bs {
		n += b.words
	}
	return n
}

func (s Segmenter) buildChunk(sec section, piece []block, index int) docs.Chunk {
	texts := make([]string, len(piece))
	for i, b := range piece {
		texts[i] = b.text
	}
	content := strings.Join(texts, "\n\n")

	title := sec.title
	if title == "" {
		title = firstLine(content)
	}

	return docs.Chunk{
		Index:       index,
		Title:       title,
		Content:     content,
		SectionPath: sec.path,
		Metadata: docs.ChunkMetadata{
			WordCount:   blockWords(piece),
			ContentType: Classify(title, content),
			Importance:  Importance(sec.level, content),
			Keywords:    Keywords(title+"\n"+content, keywordsPerChunk),
			LineStart:   piece[0].lineStart,
			LineEnd:     piece[len(piece)-1].lineEnd,
		},
	}
}

func firstLine(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	line = strings.TrimSpace(strings.Trim(line, "`~"))
	if r := []rune(line); len(r) > maxTitleLen {
		line = string(r[:maxTitleLen]) + "..."
	}
	return line
}
