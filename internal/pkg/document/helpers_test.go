package document

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-openapi/testify/v2/require"
)

const wordNamespace = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// writeDOCX writes a minimal docx package with the given body content, and returns its path.
func writeDOCX(t testing.TB, dir, name string, body ...string) string {
	t.Helper()

	pth := filepath.Join(dir, name)
	file, err := os.Create(pth)
	require.NoError(t, err)

	archive := zip.NewWriter(file)
	parts := []struct{ name, content string }{
		{
			name: "[Content_Types].xml",
			content: `<?xml version="1.0" encoding="UTF-8"?>` +
				`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
				`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
				`</Types>`,
		},
		{
			name: "_rels/.rels",
			content: `<?xml version="1.0" encoding="UTF-8"?>` +
				`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
				`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
				`</Relationships>`,
		},
		{
			name: documentPart,
			content: `<?xml version="1.0" encoding="UTF-8"?>` +
				`<w:document ` + wordNamespace + `><w:body>` + strings.Join(body, "") + `</w:body></w:document>`,
		},
	}

	for _, part := range parts {
		w, err := archive.Create(part.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(part.content))
		require.NoError(t, err)
	}

	require.NoError(t, archive.Close())
	require.NoError(t, file.Close())

	return pth
}

func paragraph(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}
