package markdown

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/timmy/slidewise/internal/source"
)

// separator is the line that starts a new slide in a markdown deck.
const separator = "---"

// Opener decodes markdown slide decks where slides are separated by "---" lines.
type Opener struct{}

// New creates a markdown opener.
func New() *Opener {
	return &Opener{}
}

func (o *Opener) Name() string { return "markdown" }

func (o *Opener) Extensions() []string { return []string{"md", "markdown", "txt"} }

// Open splits the deck into slides.
func (o *Opener) Open(ctx context.Context, name string, r io.Reader) (source.Document, error) {
	var slides []string
	var cur strings.Builder

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == separator {
			slides = append(slides, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read markdown deck: %w", err)
	}
	slides = append(slides, cur.String())

	return &Document{slides: slides, cur: -1}, nil
}

// Document iterates markdown slides.
type Document struct {
	slides []string
	cur    int
}

func (d *Document) Next() bool {
	if d.cur >= len(d.slides) {
		return false
	}
	d.cur++
	return d.cur < len(d.slides)
}

func (d *Document) Part() source.Part {
	return source.Part{Index: d.cur, Content: d.slides[d.cur]}
}

func (d *Document) Err() error { return nil }

// Render returns the slide text with whitespace collapsed.
func (d *Document) Render(p source.Part) (string, error) {
	text, ok := p.Content.(string)
	if !ok {
		return "", fmt.Errorf("part %d is not a markdown slide", p.Index)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (d *Document) Close() error { return nil }
