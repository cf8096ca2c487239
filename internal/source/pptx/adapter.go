package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/timmy/slidewise/internal/source"
)

const (
	presentationPath     = "ppt/presentation.xml"
	presentationRelsPath = "ppt/_rels/presentation.xml.rels"
	slideRelType         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
)

// maxDocumentSize bounds how much of an upload is buffered for zip decoding.
const maxDocumentSize = 256 << 20

// Opener decodes PowerPoint (.pptx) presentations.
type Opener struct{}

// New creates a pptx opener.
func New() *Opener {
	return &Opener{}
}

// Name returns the format name.
func (o *Opener) Name() string { return "pptx" }

// Extensions returns the handled extensions.
func (o *Opener) Extensions() []string { return []string{"pptx"} }

// Open reads the whole presentation and resolves the slide order.
// Parameters:
//   - ctx: context for cancellation.
//   - name: original file name.
//   - r: presentation bytes.
// Returns:
//   - source.Document: slides in presentation order.
//   - error: non-nil if the file is not a readable presentation.
func (o *Opener) Open(ctx context.Context, name string, r io.Reader) (source.Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read presentation: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("presentation exceeds %d bytes", maxDocumentSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a pptx archive: %w", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	if _, ok := files[presentationPath]; !ok {
		return nil, errors.New("not a pptx archive: missing " + presentationPath)
	}

	slides, err := slideOrder(files)
	if err != nil {
		return nil, err
	}

	return &Document{files: files, slides: slides, cur: -1}, nil
}

// Document iterates the slides of one presentation.
type Document struct {
	files  map[string]*zip.File
	slides []string
	cur    int
	err    error
}

// Next advances to the next slide.
func (d *Document) Next() bool {
	if d.err != nil || d.cur >= len(d.slides) {
		return false
	}
	d.cur++
	return d.cur < len(d.slides)
}

// Part returns the current slide.
func (d *Document) Part() source.Part {
	return source.Part{Index: d.cur, Content: d.slides[d.cur]}
}

// Err returns the iteration error, if any.
func (d *Document) Err() error { return d.err }

// Len returns the number of slides.
func (d *Document) Len() int { return len(d.slides) }

// Close releases the document.
func (d *Document) Close() error {
	d.files = nil
	return nil
}

// Render extracts slide text: every text run of every top-level text shape,
// each run whitespace-normalized, joined with single spaces.
func (d *Document) Render(p source.Part) (string, error) {
	name, ok := p.Content.(string)
	if !ok {
		return "", fmt.Errorf("part %d is not a pptx slide", p.Index)
	}
	f, ok := d.files[name]
	if !ok {
		return "", fmt.Errorf("slide %s not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open slide %s: %w", name, err)
	}
	defer rc.Close()

	runs, err := textRuns(rc)
	if err != nil {
		return "", fmt.Errorf("failed to parse slide %s: %w", name, err)
	}
	return strings.Join(runs, " "), nil
}

// runPath is the element path, relative to the shape tree, of a text run's text.
var runPath = []string{"spTree", "sp", "txBody", "p", "r", "t"}

func textRuns(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var stack []string
	var runs []string
	var buf strings.Builder

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return runs, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			if inRun(stack) {
				buf.Reset()
			}
		case xml.CharData:
			if inRun(stack) {
				buf.Write(t)
			}
		case xml.EndElement:
			if inRun(stack) {
				if text := strings.Join(strings.Fields(buf.String()), " "); text != "" {
					runs = append(runs, text)
				}
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

func inRun(stack []string) bool {
	if len(stack) < len(runPath) {
		return false
	}
	tail := stack[len(stack)-len(runPath):]
	for i := range runPath {
		if tail[i] != runPath[i] {
			return false
		}
	}
	return true
}

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// slideOrder resolves slide part names in presentation order through sldIdLst
// and the presentation relationships. Archives without a usable list fall
// back to numeric order of ppt/slides/slideN.xml.
func slideOrder(files map[string]*zip.File) ([]string, error) {
	var pres presentationXML
	if err := decodeXML(files[presentationPath], &pres); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", presentationPath, err)
	}

	if relsFile, ok := files[presentationRelsPath]; ok && len(pres.SlideIDs) > 0 {
		var rels relationshipsXML
		if err := decodeXML(relsFile, &rels); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", presentationRelsPath, err)
		}
		targets := make(map[string]string, len(rels.Relationships))
		for _, rel := range rels.Relationships {
			if rel.Type == slideRelType {
				targets[rel.ID] = resolveTarget(rel.Target)
			}
		}

		slides := make([]string, 0, len(pres.SlideIDs))
		for _, sid := range pres.SlideIDs {
			target, ok := targets[sid.RID]
			if !ok {
				return nil, fmt.Errorf("slide relationship %q not found", sid.RID)
			}
			if _, ok := files[target]; !ok {
				return nil, fmt.Errorf("slide %s missing from archive", target)
			}
			slides = append(slides, target)
		}
		return slides, nil
	}

	return numberedSlides(files), nil
}

func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join("ppt", target))
}

func numberedSlides(files map[string]*zip.File) []string {
	type numbered struct {
		name string
		n    int
	}
	var found []numbered
	for name := range files {
		if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
		if err != nil {
			continue
		}
		found = append(found, numbered{name: name, n: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	slides := make([]string, len(found))
	for i, f := range found {
		slides[i] = f.name
	}
	return slides
}

func decodeXML(f *zip.File, v interface{}) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}
