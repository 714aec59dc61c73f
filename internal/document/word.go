package document

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

const docxBody = "word/document.xml"

// maxDocxBodyBytes bounds the decompressed size of word/document.xml.
const maxDocxBodyBytes = 64 << 20

// minTextRun is the shortest printable run kept from a legacy .doc file.
const minTextRun = 4

var (
	ErrNotOOXML      = errors.New("not an OOXML word document")
	ErrNoTextContent = errors.New("no text content found")
)

var zipMagic = []byte("PK\x03\x04")

func isOOXMLWord(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == docxBody {
			return true
		}
	}
	return false
}

// DOCXText returns the body text of an OOXML word document. Paragraphs and
// line breaks become newlines, tabs become tabs.
func DOCXText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", ErrNotOOXML
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()

	return wordMLText(io.LimitReader(rc, maxDocxBodyBytes))
}

func wordMLText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// wordStream is the compound file stream holding a Word document's text.
const wordStream = "WordDocument"

// DOCText returns a best-effort reading of a legacy Word document. Files that
// are really OOXML are read as DOCX. Otherwise printable text runs are
// scanned, in both 8-bit and UTF-16LE encodings, from the WordDocument
// stream, or from the whole file when it is not a readable compound file.
func DOCText(data []byte) (string, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return DOCXText(data)
	}
	if stream, err := wordDocumentStream(data); err == nil {
		data = stream
	}

	runs := utf16Runs(data)
	if narrow := asciiRuns(data); runeCount(narrow) > runeCount(runs) {
		runs = narrow
	}
	if len(runs) == 0 {
		return "", ErrNoTextContent
	}
	return strings.Join(runs, "\n"), nil
}

// wordDocumentStream extracts the WordDocument stream so that font tables
// and property sets stored beside it are not scanned.
func wordDocumentStream(data []byte) ([]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Name == wordStream {
			return io.ReadAll(entry)
		}
	}
	return nil, fmt.Errorf("compound file has no %s stream", wordStream)
}

func runeCount(runs []string) int {
	n := 0
	for _, r := range runs {
		n += len([]rune(r))
	}
	return n
}

func asciiRuns(data []byte) []string {
	var (
		runs []string
		cur  []byte
	)
	flush := func() {
		if len(strings.TrimSpace(string(cur))) >= minTextRun {
			runs = append(runs, strings.TrimSpace(string(cur)))
		}
		cur = cur[:0]
	}
	for _, b := range data {
		if b == '\r' || b == '\n' {
			flush()
			continue
		}
		if b == '\t' || (b >= 0x20 && b < 0x7f) {
			cur = append(cur, b)
			continue
		}
		flush()
	}
	flush()
	return runs
}

func utf16Runs(data []byte) []string {
	var (
		runs []string
		cur  []uint16
	)
	flush := func() {
		s := strings.TrimSpace(string(utf16.Decode(cur)))
		if len([]rune(s)) >= minTextRun {
			runs = append(runs, s)
		}
		cur = cur[:0]
	}
	for i := 0; i+1 < len(data); i += 2 {
		u := binary.LittleEndian.Uint16(data[i:])
		if u == '\r' || u == '\n' {
			flush()
			continue
		}
		// Latin-1 only: wider code units are indistinguishable from pairs of
		// 8-bit characters.
		if u == '\t' || (u >= 0x20 && u < 0x7f) || (u >= 0xa0 && u < 0x100) {
			cur = append(cur, u)
			continue
		}
		flush()
	}
	flush()
	return runs
}
