package recovery

import (
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
)

// Classifier reports a best-effort media type for the file at path.
type Classifier interface {
	Classify(path string) (string, error)
}

// SniffClassifier is the default Classifier. No library in the example
// corpus performs content sniffing (see DESIGN.md), so this single
// piece is grounded on the standard library's DetectContentType, which
// spec.md treats as an abstract external oracle in any case.
type SniffClassifier struct{}

// sniffLen mirrors net/http.DetectContentType's documented read window.
const sniffLen = 512

func (SniffClassifier) Classify(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	return baseMediaType(http.DetectContentType(buf[:n])), nil
}

// baseMediaType strips DetectContentType's ";"-parameter suffix (e.g.
// "text/plain; charset=utf-8" -> "text/plain") so fixedExtensions and
// the subtype-derivation rule below see the bare media type spec.md
// section 4.5 is written against.
func baseMediaType(mediaType string) string {
	if semi := strings.Index(mediaType, ";"); semi >= 0 {
		mediaType = mediaType[:semi]
	}
	return strings.TrimSpace(mediaType)
}

// fixedExtensions is the minimum mapping spec.md section 4.5 requires
// before falling back to the subtype-derivation rule.
var fixedExtensions = map[string]string{
	"application/octet-stream": "bin",
	"text/plain":               "txt",
}

// vendorPrefix strips a leading "alnum+[-.]" vendor prefix, e.g. the
// "vnd." in "vnd.openxmlformats-officedocument...".
var vendorPrefix = regexp.MustCompile(`^[a-zA-Z0-9]+[-.]`)

// ExtensionFor derives a plausible file extension from a media type per
// spec.md section 4.5: consult the fixed mapping first; otherwise take
// the portion after the final '/', strip any "+"-suffix, strip a
// leading vendor prefix, and lowercase. The second return value is
// false when no usable extension could be derived.
func ExtensionFor(mediaType string) (string, bool) {
	if ext, ok := fixedExtensions[mediaType]; ok {
		return ext, true
	}

	idx := strings.LastIndex(mediaType, "/")
	if idx < 0 || idx == len(mediaType)-1 {
		return "", false
	}
	sub := mediaType[idx+1:]

	if plus := strings.Index(sub, "+"); plus >= 0 {
		sub = sub[:plus]
	}
	sub = vendorPrefix.ReplaceAllString(sub, "")
	sub = strings.ToLower(strings.TrimSpace(sub))

	if sub == "" {
		return "", false
	}
	return sub, true
}
