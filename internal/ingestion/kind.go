package ingestion

import (
	"path"
	"strings"
)

// Kind selects the extractor used for an input.
type Kind int

const (
	// KindText is also the explicit default for unknown or missing extensions.
	KindText Kind = iota
	KindPDF
	KindSlides
	KindImage
)

var kindByExtension = map[string]Kind{
	"pdf":  KindPDF,
	"pptx": KindSlides,
	"jpg":  KindImage,
	"jpeg": KindImage,
	"png":  KindImage,
	"txt":  KindText,
	"md":   KindText,
}

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindSlides:
		return "slides"
	case KindImage:
		return "image"
	default:
		return "text"
	}
}

// KindFromName maps the lowercased suffix after the last dot of name to a Kind.
func KindFromName(name string) Kind {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return KindText
	}

	if kind, ok := kindByExtension[strings.ToLower(base[idx+1:])]; ok {
		return kind
	}
	return KindText
}

// RawInput is one received document. It is not modified after creation.
type RawInput struct {
	Name  string
	Bytes []byte
	Kind  Kind
}

// NewRawInput derives the kind from the file name.
func NewRawInput(name string, data []byte) RawInput {
	return RawInput{Name: name, Bytes: data, Kind: KindFromName(name)}
}
