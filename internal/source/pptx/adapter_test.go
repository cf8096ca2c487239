package pptx

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/slidewise/internal/source"
)

const (
	nsP = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsA = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// slideXML builds a slide whose top-level shapes hold the given runs.
func slideXML(shapes ...[]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?><p:sld xmlns:p="%s" xmlns:a="%s"><p:cSld><p:spTree>`, nsP, nsA)
	for _, runs := range shapes {
		b.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="1" name="t"/></p:nvSpPr><p:txBody><a:bodyPr/><a:p>`)
		for _, r := range runs {
			fmt.Fprintf(&b, `<a:r><a:rPr lang="en-US"/><a:t>%s</a:t></a:r>`, r)
		}
		b.WriteString(`</a:p></p:txBody></p:sp>`)
	}
	b.WriteString(`</p:spTree></p:cSld></p:sld>`)
	return b.String()
}

func buildPPTX(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// orderedDeck has slide2.xml presented before slide1.xml.
func orderedDeck(t *testing.T) []byte {
	return buildPPTX(t, map[string]string{
		presentationPath: fmt.Sprintf(`<?xml version="1.0"?><p:presentation xmlns:p="%s" xmlns:r="%s"><p:sldIdLst>`+
			`<p:sldId id="256" r:id="rId3"/><p:sldId id="257" r:id="rId2"/></p:sldIdLst></p:presentation>`, nsP, nsR),
		presentationRelsPath: `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="slideMasters/slideMaster1.xml"/>` +
			`<Relationship Id="rId2" Type="` + slideRelType + `" Target="slides/slide1.xml"/>` +
			`<Relationship Id="rId3" Type="` + slideRelType + `" Target="slides/slide2.xml"/>` +
			`</Relationships>`,
		"ppt/slides/slide1.xml": slideXML([]string{"Second", "  shown  "}),
		"ppt/slides/slide2.xml": slideXML([]string{"Title"}, []string{"Body", "   ", "text"}),
	})
}

func renderAll(t *testing.T, doc source.Document) []string {
	t.Helper()
	var out []string
	for doc.Next() {
		text, err := doc.Render(doc.Part())
		require.NoError(t, err)
		out = append(out, text)
	}
	require.NoError(t, doc.Err())
	return out
}

func TestOpenFollowsPresentationOrder(t *testing.T) {
	doc, err := New().Open(context.Background(), "deck.pptx", bytes.NewReader(orderedDeck(t)))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 2, doc.(*Document).Len())
	assert.Equal(t, []string{"Title Body text", "Second shown"}, renderAll(t, doc))
}

func TestOpenFallsBackToNumberedSlides(t *testing.T) {
	data := buildPPTX(t, map[string]string{
		presentationPath:         fmt.Sprintf(`<p:presentation xmlns:p="%s"/>`, nsP),
		"ppt/slides/slide10.xml": slideXML([]string{"ten"}),
		"ppt/slides/slide2.xml":  slideXML([]string{"two"}),
		"ppt/slides/slide1.xml":  slideXML(),
	})

	doc, err := New().Open(context.Background(), "deck.pptx", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"", "two", "ten"}, renderAll(t, doc))
}

func TestRenderIgnoresNonShapeText(t *testing.T) {
	grouped := fmt.Sprintf(`<p:sld xmlns:p="%s" xmlns:a="%s"><p:cSld><p:spTree>`+
		`<p:grpSp><p:sp><p:txBody><a:p><a:r><a:t>grouped</a:t></a:r></a:p></p:txBody></p:sp></p:grpSp>`+
		`<p:sp><p:txBody><a:p><a:r><a:t>top</a:t></a:r><a:fld><a:t>7</a:t></a:fld></a:p></p:txBody></p:sp>`+
		`</p:spTree></p:cSld></p:sld>`, nsP, nsA)
	data := buildPPTX(t, map[string]string{
		presentationPath:        fmt.Sprintf(`<p:presentation xmlns:p="%s"/>`, nsP),
		"ppt/slides/slide1.xml": grouped,
	})

	doc, err := New().Open(context.Background(), "deck.pptx", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"top"}, renderAll(t, doc))
}

func TestRenderConcurrently(t *testing.T) {
	doc, err := New().Open(context.Background(), "deck.pptx", bytes.NewReader(orderedDeck(t)))
	require.NoError(t, err)

	var parts []source.Part
	for doc.Next() {
		parts = append(parts, doc.Part())
	}

	done := make(chan string, 10*len(parts))
	for i := 0; i < 10; i++ {
		for _, p := range parts {
			go func(p source.Part) {
				text, err := doc.Render(p)
				assert.NoError(t, err)
				done <- text
			}(p)
		}
	}
	for i := 0; i < 10*len(parts); i++ {
		assert.NotEmpty(t, <-done)
	}
}

func TestOpenRejectsInvalidArchives(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("plain text")},
		{"zip without presentation", buildPPTX(t, map[string]string{"word/document.xml": "<w/>"})},
		{"dangling relationship", buildPPTX(t, map[string]string{
			presentationPath: fmt.Sprintf(`<p:presentation xmlns:p="%s" xmlns:r="%s"><p:sldIdLst><p:sldId r:id="rId9"/></p:sldIdLst></p:presentation>`, nsP, nsR),
			presentationRelsPath: `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Open(context.Background(), "deck.pptx", bytes.NewReader(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestRenderRejectsForeignPart(t *testing.T) {
	doc, err := New().Open(context.Background(), "deck.pptx", bytes.NewReader(orderedDeck(t)))
	require.NoError(t, err)

	_, err = doc.Render(source.Part{Index: 0, Content: 42})
	assert.Error(t, err)
	_, err = doc.Render(source.Part{Index: 0, Content: "ppt/slides/slide99.xml"})
	assert.Error(t, err)
}
