package document

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Format is the extraction path chosen for a document.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDOCX  Format = "docx"
	FormatDOC   Format = "doc"
	FormatImage Format = "image"
	FormatText  Format = "text"
)

// Hints describe an upload as declared by the client.
type Hints struct {
	ContentType string
	Filename    string
}

// genericContentTypes carry no information about the document format.
var genericContentTypes = map[string]bool{
	"":                           true,
	"application/octet-stream":   true,
	"binary/octet-stream":        true,
	"application/x-download":     true,
	"application/force-download": true,
	"application/unknown":        true,
}

var extensionFormats = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".doc":  FormatDOC,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".png":  FormatImage,
	".gif":  FormatImage,
	".bmp":  FormatImage,
	".tif":  FormatImage,
	".tiff": FormatImage,
	".webp": FormatImage,
	".txt":  FormatText,
}

var extensionMediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

// MediaType returns the lower-cased media type of a Content-Type header value
// without parameters.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}

func formatFromMediaType(mt string) (Format, bool) {
	switch {
	case mt == "application/pdf" || mt == "application/x-pdf":
		return FormatPDF, true
	case mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FormatDOCX, true
	case mt == "application/msword":
		return FormatDOC, true
	case strings.HasPrefix(mt, "image/"):
		return FormatImage, true
	case strings.HasPrefix(mt, "text/"):
		return FormatText, true
	}
	return "", false
}

// DetectFormat decides the extraction path: declared content type first, the
// filename extension when the content type is absent, generic or unknown, and
// finally the leading bytes of data. Anything unrecognized is read as text.
func DetectFormat(h Hints, data []byte) Format {
	f, _ := detect(h, data)
	return f
}

// detect also returns the media type handed to OCR for images.
func detect(h Hints, data []byte) (Format, string) {
	mt := MediaType(h.ContentType)
	if !genericContentTypes[mt] {
		if f, ok := formatFromMediaType(mt); ok {
			return f, mt
		}
	}

	ext := strings.ToLower(filepath.Ext(h.Filename))
	if f, ok := extensionFormats[ext]; ok {
		if f == FormatImage {
			return f, extensionMediaTypes[ext]
		}
		return f, mt
	}

	sniffed := MediaType(http.DetectContentType(data))
	if f, ok := formatFromMediaType(sniffed); ok {
		return f, sniffed
	}
	if sniffed == "application/zip" && isOOXMLWord(data) {
		return FormatDOCX, sniffed
	}
	return FormatText, mt
}
