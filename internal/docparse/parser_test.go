package docparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"requirements.pdf", FileTypePDF},
		{"Requirements.PDF", FileTypePDF},
		{"notes.md", FileTypeMD},
		{"notes.markdown", FileTypeMD},
		{"plain.txt", FileTypeTXT},
		{"archive.docx", "docx"},
		{"noext", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			require.Equal(t, tt.want, DetectFileType(tt.filename))
		})
	}
}

func TestIsSupported(t *testing.T) {
	require.True(t, IsSupported(FileTypePDF))
	require.True(t, IsSupported(FileTypeMD))
	require.True(t, IsSupported(FileTypeTXT))
	require.False(t, IsSupported("docx"))
	require.False(t, IsSupported(""))
}

func TestParsePlainTextPassesThrough(t *testing.T) {
	p := NewParser()

	doc, err := p.Parse("prd.txt", strings.NewReader("The system shall allow login."))
	require.NoError(t, err)
	require.Equal(t, "The system shall allow login.", doc.FullText)
	require.Equal(t, 1, doc.PageCount)
	require.Empty(t, doc.Tables)
}

func TestParseMarkdownPassesThrough(t *testing.T) {
	p := NewParser()

	doc, err := p.Parse("prd.md", strings.NewReader("# Requirements\n\n- login"))
	require.NoError(t, err)
	require.Contains(t, doc.FullText, "# Requirements")
}

func TestParseRejectsUnsupportedType(t *testing.T) {
	p := NewParser()

	_, err := p.Parse("prd.docx", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported file type")
}

func TestParseRejectsMalformedPDF(t *testing.T) {
	p := NewParser()

	_, err := p.Parse("prd.pdf", strings.NewReader("not a pdf"))
	require.Error(t, err)
}
