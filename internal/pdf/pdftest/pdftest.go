// Package pdftest generates small valid PDFs for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Document returns a PDF with the given number of letter-size pages. Page N
// carries the text "Page N Text".
func Document(pages int) []byte {
	return render(pages, true)
}

// Blank returns a PDF whose pages have no text layer, like a scan.
func Blank(pages int) []byte {
	return render(pages, false)
}

func render(pages int, withText bool) []byte {
	if pages < 1 {
		pages = 1
	}

	var buf bytes.Buffer
	// Objects: 1 catalog, 2 pages, then per page one page object and one
	// content stream.
	total := 2 + 2*pages
	offsets := make([]int, total+1)

	buf.WriteString("%PDF-1.4\n")

	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<<\n/Type /Catalog\n/Pages 2 0 R\n>>\nendobj\n")

	offsets[2] = buf.Len()
	var kids bytes.Buffer
	for i := 0; i < pages; i++ {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(&kids, "%d 0 R", 3+i)
	}
	fmt.Fprintf(&buf, "2 0 obj\n<<\n/Type /Pages\n/Kids [%s]\n/Count %d\n>>\nendobj\n", kids.String(), pages)

	for i := 0; i < pages; i++ {
		obj := 3 + i
		offsets[obj] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n<<\n/Type /Page\n/Parent 2 0 R\n/MediaBox [0 0 612 792]\n/Contents %d 0 R\n"+
			"/Resources <<\n/Font <<\n/F1 <<\n/Type /Font\n/Subtype /Type1\n/BaseFont /Helvetica\n>>\n>>\n>>\n>>\nendobj\n",
			obj, 3+pages+i)
	}

	for i := 0; i < pages; i++ {
		obj := 3 + pages + i
		offsets[obj] = buf.Len()
		content := "q\nQ\n"
		if withText {
			content = fmt.Sprintf("BT\n/F1 12 Tf\n100 700 Td\n(Page %d Text) Tj\nET\n", i+1)
		}
		fmt.Fprintf(&buf, "%d 0 obj\n<<\n/Length %d\n>>\nstream\n%sendstream\nendobj\n", obj, len(content), content)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", total+1)
	for obj := 1; obj <= total; obj++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[obj])
	}
	fmt.Fprintf(&buf, "trailer\n<<\n/Size %d\n/Root 1 0 R\n>>\nstartxref\n%d\n%%%%EOF\n", total+1, xref)

	return buf.Bytes()
}

// Write stores a generated document under dir and returns its path.
func Write(t testing.TB, dir, name string, pages int) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Document(pages), 0o600); err != nil {
		t.Fatalf("write test pdf: %v", err)
	}
	return path
}
