package document_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"unicode/utf16"

	. "github.com/smartystreets/goconvey/convey"

	"transcripts/internal/document"
	"transcripts/internal/ocr"
)

type fakeEngine struct {
	calls    int
	mimeType string
	text     string
	err      error
	panics   bool
}

func (f *fakeEngine) Recognize(_ context.Context, _ []byte, mimeType string) (*ocr.OCRResult, error) {
	f.calls++
	f.mimeType = mimeType
	if f.panics {
		panic("engine exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.OCRResult{Text: f.text, PageCount: 1, Confidence: 0.9}, nil
}

func (f *fakeEngine) Name() string { return "fake" }
func (f *fakeEngine) Close() error { return nil }

const wordXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Name:</w:t><w:tab/><w:t>Jane Wanjiru</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">MEAN GRADE: B</w:t></w:r></w:p>
</w:body>
</w:document>`

func buildDOCX(files map[string]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func utf16LE(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}

func textLayer(text string, err error) document.Option {
	return document.WithTextLayer(func([]byte) (string, error) {
		return text, err
	})
}

var pdfBytes = []byte("%PDF-1.4\n% scanned transcript\n")

// buildPDF writes a one-page digital PDF that shows text in Helvetica.
func buildPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// cfbStream is one stream of a compound file built by buildCFB.
type cfbStream struct {
	name string
	data []byte
}

// buildCFB writes a version 3 compound file holding streams under the root
// storage. Streams are padded to 4096 bytes so they live in regular sectors.
func buildCFB(streams ...cfbStream) []byte {
	const (
		sector     = 512
		streamSize = 4096
		endOfChain = 0xFFFFFFFE
		freeSect   = 0xFFFFFFFF
		fatSect    = 0xFFFFFFFD
		noStream   = 0xFFFFFFFF
	)
	le := binary.LittleEndian
	perStream := streamSize / sector

	header := make([]byte, sector)
	copy(header, []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1})
	le.PutUint16(header[24:], 0x003e)
	le.PutUint16(header[26:], 3)
	le.PutUint16(header[28:], 0xfffe)
	le.PutUint16(header[30:], 9)
	le.PutUint16(header[32:], 6)
	le.PutUint32(header[44:], 1) // FAT sectors
	le.PutUint32(header[48:], 1) // first directory sector
	le.PutUint32(header[56:], streamSize)
	le.PutUint32(header[60:], endOfChain)
	le.PutUint32(header[68:], endOfChain)
	for i := 76; i < sector; i += 4 {
		le.PutUint32(header[i:], freeSect)
	}
	le.PutUint32(header[76:], 0) // the FAT lives in sector 0

	fat := make([]byte, sector)
	for i := 0; i < sector; i += 4 {
		le.PutUint32(fat[i:], freeSect)
	}
	le.PutUint32(fat[0:], fatSect)
	le.PutUint32(fat[4:], endOfChain)

	dir := make([]byte, sector)
	entry := func(i int, name string, kind byte, left, right, child, start uint32, size int) {
		e := dir[i*128 : (i+1)*128]
		u := utf16.Encode([]rune(name))
		for j, c := range u {
			le.PutUint16(e[j*2:], c)
		}
		le.PutUint16(e[64:], uint16((len(u)+1)*2))
		e[66] = kind
		e[67] = 1
		le.PutUint32(e[68:], left)
		le.PutUint32(e[72:], right)
		le.PutUint32(e[76:], child)
		le.PutUint32(e[116:], start)
		le.PutUint32(e[120:], uint32(size))
	}
	for i := 0; i < 4; i++ {
		le.PutUint32(dir[i*128+68:], noStream)
		le.PutUint32(dir[i*128+72:], noStream)
		le.PutUint32(dir[i*128+76:], noStream)
	}
	entry(0, "Root Entry", 5, noStream, noStream, 1, endOfChain, 0)

	var body bytes.Buffer
	for i, st := range streams {
		first := 2 + i*perStream
		for j := 0; j < perStream; j++ {
			next := uint32(first + j + 1)
			if j == perStream-1 {
				next = endOfChain
			}
			le.PutUint32(fat[(first+j)*4:], next)
		}
		right := uint32(noStream)
		if i+1 < len(streams) {
			right = uint32(i + 2)
		}
		entry(i+1, st.name, 2, noStream, right, noStream, uint32(first), streamSize)

		padded := make([]byte, streamSize)
		copy(padded, st.data)
		body.Write(padded)
	}

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(fat)
	buf.Write(dir)
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	docx := buildDOCX(map[string]string{"word/document.xml": wordXML})

	Convey("Given upload hints", t, func() {
		Convey("A declared content type wins and parameters are ignored", func() {
			So(document.DetectFormat(document.Hints{ContentType: "application/PDF; charset=binary", Filename: "x.docx"}, nil), ShouldEqual, document.FormatPDF)
			So(document.DetectFormat(document.Hints{ContentType: "image/png"}, nil), ShouldEqual, document.FormatImage)
			So(document.DetectFormat(document.Hints{ContentType: "application/msword"}, nil), ShouldEqual, document.FormatDOC)
			So(document.DetectFormat(document.Hints{ContentType: "text/plain"}, nil), ShouldEqual, document.FormatText)
		})

		Convey("Generic content types fall back to the extension", func() {
			So(document.DetectFormat(document.Hints{ContentType: "application/octet-stream", Filename: "t.docx"}, nil), ShouldEqual, document.FormatDOCX)
			So(document.DetectFormat(document.Hints{ContentType: "binary/octet-stream", Filename: "T.PDF"}, nil), ShouldEqual, document.FormatPDF)
			So(document.DetectFormat(document.Hints{Filename: "scan.JPEG"}, nil), ShouldEqual, document.FormatImage)
			So(document.DetectFormat(document.Hints{ContentType: "application/force-download", Filename: "old.doc"}, nil), ShouldEqual, document.FormatDOC)
		})

		Convey("Without usable hints the content is sniffed", func() {
			So(document.DetectFormat(document.Hints{}, pdfBytes), ShouldEqual, document.FormatPDF)
			So(document.DetectFormat(document.Hints{}, []byte("\x89PNG\r\n\x1a\n0000")), ShouldEqual, document.FormatImage)
			So(document.DetectFormat(document.Hints{ContentType: "application/octet-stream"}, docx), ShouldEqual, document.FormatDOCX)
			So(document.DetectFormat(document.Hints{ContentType: "application/json"}, []byte(`{"a":1}`)), ShouldEqual, document.FormatText)
		})
	})
}

func TestNormalizePDF(t *testing.T) {
	ctx := context.Background()
	hints := document.Hints{ContentType: "application/pdf", Filename: "transcript.pdf"}

	Convey("Given a PDF", t, func() {
		engine := &fakeEngine{text: "MEAN GRADE: A"}

		Convey("When the text layer is long enough it is used without OCR", func() {
			n := document.NewNormalizer(engine, textLayer("KCSE transcript MEAN GRADE: B", nil))

			So(n.Normalize(ctx, pdfBytes, hints), ShouldEqual, "KCSE transcript MEAN GRADE: B")
			So(engine.calls, ShouldEqual, 0)
		})

		Convey("When the text layer is short after whitespace normalization OCR runs once", func() {
			n := document.NewNormalizer(engine, textLayer("  Page\n\n\n   1    of   1  \t\t\t\t\t ", nil))

			out := n.NormalizeDetailed(ctx, pdfBytes, hints)
			So(out.Text, ShouldEqual, "MEAN GRADE: A")
			So(out.OCRUsed, ShouldBeTrue)
			So(engine.calls, ShouldEqual, 1)
			So(engine.mimeType, ShouldEqual, "application/pdf")
		})

		Convey("When the text layer cannot be read OCR runs once", func() {
			n := document.NewNormalizer(engine, textLayer("", errors.New("malformed xref")))

			So(n.Normalize(ctx, pdfBytes, hints), ShouldEqual, "MEAN GRADE: A")
			So(engine.calls, ShouldEqual, 1)
		})

		Convey("When the text layer extractor panics OCR runs once", func() {
			n := document.NewNormalizer(engine, document.WithTextLayer(func([]byte) (string, error) {
				panic("bad stream")
			}))

			So(n.Normalize(ctx, pdfBytes, hints), ShouldEqual, "MEAN GRADE: A")
			So(engine.calls, ShouldEqual, 1)
		})

		Convey("When a digital PDF is read by the real extractor OCR is skipped", func() {
			digital := buildPDF("KENYATTA UNIVERSITY TRANSCRIPT MEAN GRADE: B")

			layer, err := document.PDFTextLayer(digital)
			So(err, ShouldBeNil)
			So(layer, ShouldContainSubstring, "MEAN GRADE: B")

			out := document.NewNormalizer(engine).NormalizeDetailed(ctx, digital, hints)
			So(out.Format, ShouldEqual, document.FormatPDF)
			So(out.Text, ShouldContainSubstring, "KENYATTA UNIVERSITY TRANSCRIPT MEAN GRADE: B")
			So(out.OCRUsed, ShouldBeFalse)
			So(engine.calls, ShouldEqual, 0)
		})

		Convey("When the real extractor sees a corrupt file OCR still runs", func() {
			n := document.NewNormalizer(engine)

			So(n.Normalize(ctx, []byte("%PDF-1.7 truncated"), hints), ShouldEqual, "MEAN GRADE: A")
			So(engine.calls, ShouldEqual, 1)
		})

		Convey("When OCR fails the result is empty", func() {
			engine.err = errors.New("deadline exceeded")
			n := document.NewNormalizer(engine, textLayer("", nil))

			out := n.NormalizeDetailed(ctx, pdfBytes, hints)
			So(out.Text, ShouldBeEmpty)
			So(out.OCRErr, ShouldNotBeNil)
			So(engine.calls, ShouldEqual, 1)
		})

		Convey("When no OCR engine is configured the result is empty", func() {
			n := document.NewNormalizer(nil, textLayer("", nil))

			out := n.NormalizeDetailed(ctx, pdfBytes, hints)
			So(out.Text, ShouldBeEmpty)
			So(out.OCRUsed, ShouldBeFalse)
		})
	})
}

func TestNormalizeImage(t *testing.T) {
	ctx := context.Background()

	Convey("Given an image upload", t, func() {
		engine := &fakeEngine{text: "MEAN SCORE: 61"}
		n := document.NewNormalizer(engine)

		Convey("OCR is called with the declared media type", func() {
			So(n.Normalize(ctx, []byte("png"), document.Hints{ContentType: "image/png"}), ShouldEqual, "MEAN SCORE: 61")
			So(engine.mimeType, ShouldEqual, "image/png")
			So(engine.calls, ShouldEqual, 1)
		})

		Convey("The media type is taken from the extension for generic uploads", func() {
			n.Normalize(ctx, []byte("jpg"), document.Hints{ContentType: "application/octet-stream", Filename: "scan.jpg"})
			So(engine.mimeType, ShouldEqual, "image/jpeg")
		})

		Convey("A panicking engine yields an empty string", func() {
			engine.panics = true
			So(n.Normalize(ctx, []byte("png"), document.Hints{ContentType: "image/png"}), ShouldBeEmpty)
			So(engine.calls, ShouldEqual, 1)
		})
	})
}

func TestNormalizeWord(t *testing.T) {
	ctx := context.Background()
	n := document.NewNormalizer(nil)
	docxType := "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	Convey("Given Word documents", t, func() {
		Convey("DOCX paragraphs and tabs are kept", func() {
			data := buildDOCX(map[string]string{"word/document.xml": wordXML})

			So(n.Normalize(ctx, data, document.Hints{ContentType: docxType}), ShouldEqual, "Name:\tJane Wanjiru\nMEAN GRADE: B")
		})

		Convey("A corrupt DOCX yields an empty string", func() {
			So(n.Normalize(ctx, []byte("PK\x03\x04 broken"), document.Hints{ContentType: docxType}), ShouldBeEmpty)
		})

		Convey("A zip without a document body yields an empty string", func() {
			data := buildDOCX(map[string]string{"content.xml": "<office/>"})
			So(n.Normalize(ctx, data, document.Hints{Filename: "a.docx"}), ShouldBeEmpty)
		})

		Convey("A .doc that is really OOXML is read as DOCX", func() {
			data := buildDOCX(map[string]string{"word/document.xml": wordXML})

			So(n.Normalize(ctx, data, document.Hints{ContentType: "application/msword"}), ShouldContainSubstring, "MEAN GRADE: B")
		})

		Convey("Only the WordDocument stream of a compound file is read", func() {
			data := buildCFB(
				cfbStream{name: "WordDocument", data: append([]byte{0xec, 0xa5, 0xc1, 0x00, 0, 0}, []byte("KCSE RESULT SLIP\rMEAN GRADE: B\r")...)},
				cfbStream{name: "1Table", data: append([]byte{0, 0, 0x16, 0}, []byte("Times New Roman\x00Symbol\x00Arial")...)},
			)

			out := n.Normalize(ctx, data, document.Hints{Filename: "transcript.doc"})
			So(out, ShouldContainSubstring, "MEAN GRADE: B")
			So(out, ShouldContainSubstring, "KCSE RESULT SLIP")
			So(out, ShouldNotContainSubstring, "Times New Roman")
			So(out, ShouldNotContainSubstring, "Root Entry")
		})

		Convey("Text runs are recovered from a damaged compound file", func() {
			data := append([]byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1, 0, 1, 2}, []byte("MEAN SCORE: 72.5")...)
			data = append(data, 0, 0, 3, 0xff)

			So(n.Normalize(ctx, data, document.Hints{Filename: "old.doc"}), ShouldContainSubstring, "MEAN SCORE: 72.5")
		})

		Convey("UTF-16 text runs are recovered from a damaged compound file", func() {
			data := append([]byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}, utf16LE("AVERAGE: 64")...)
			data = append(data, 0x01, 0x00, 0x02, 0x00)

			So(n.Normalize(ctx, data, document.Hints{ContentType: "application/msword"}), ShouldContainSubstring, "AVERAGE: 64")
		})

		Convey("A binary .doc without text yields an empty string", func() {
			So(n.Normalize(ctx, []byte{0xd0, 0xcf, 0x11, 0xe0, 1, 2, 3}, document.Hints{Filename: "x.doc"}), ShouldBeEmpty)
		})
	})
}

func TestNormalizeText(t *testing.T) {
	ctx := context.Background()
	n := document.NewNormalizer(nil)

	Convey("Given other content", t, func() {
		Convey("Text is returned verbatim", func() {
			So(n.Normalize(ctx, []byte("GPA: 3.5\n"), document.Hints{ContentType: "text/plain"}), ShouldEqual, "GPA: 3.5\n")
		})

		Convey("Invalid UTF-8 is replaced", func() {
			So(n.Normalize(ctx, []byte("GPA\xff 3"), document.Hints{}), ShouldEqual, "GPA� 3")
		})

		Convey("An empty upload yields an empty string", func() {
			So(n.Normalize(ctx, nil, document.Hints{ContentType: "application/pdf"}), ShouldBeEmpty)
		})
	})
}
