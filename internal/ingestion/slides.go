package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	nsPresentation  = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsDrawing       = "http://schemas.openxmlformats.org/drawingml/2006/main"
	presentationXML = "ppt/presentation.xml"
	presentationRel = "ppt/_rels/presentation.xml.rels"
)

var slideFilePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type shapeKind int

const (
	// shapeAuto is an autoshape without a text frame.
	shapeAuto shapeKind = iota
	shapeText
	shapePicture
	shapeGraphicFrame
	shapeConnector
)

var shapeKinds = map[string]shapeKind{
	"sp":           shapeAuto,
	"pic":          shapePicture,
	"graphicFrame": shapeGraphicFrame,
	"cxnSp":        shapeConnector,
}

type shape struct {
	kind shapeKind
	text string
}

// Text reports the shape's text and whether the shape carries a text frame at all.
func (s shape) Text() (string, bool) {
	if s.kind != shapeText {
		return "", false
	}
	return s.text, true
}

// SlidesExtractor reads a pptx deck: for each slide in presentation order, the
// text of every shape that has a text frame.
type SlidesExtractor struct{}

func (SlidesExtractor) Extract(_ context.Context, in RawInput) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(in.Bytes), int64(len(in.Bytes)))
	if err != nil {
		return "", fmt.Errorf("%w: open deck: %w", ErrUnsupportedDocument, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	order, err := slideOrder(files)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedDocument, err)
	}

	texts := make([]string, 0)
	for _, name := range order {
		f, ok := files[name]
		if !ok {
			return "", fmt.Errorf("%w: slide %s is referenced but missing", ErrUnsupportedDocument, name)
		}

		shapes, err := readSlide(f)
		if err != nil {
			return "", fmt.Errorf("%w: slide %s: %w", ErrUnsupportedDocument, name, err)
		}

		for _, s := range shapes {
			if text, ok := s.Text(); ok {
				texts = append(texts, text)
			}
		}
	}

	return strings.Join(texts, "\n"), nil
}

type presentationDoc struct {
	SlideIDs []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsDoc struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// slideOrder resolves slide part names in presentation order, falling back to
// the numeric order of slide file names when the deck has no slide id list.
func slideOrder(files map[string]*zip.File) ([]string, error) {
	presFile, ok := files[presentationXML]
	if !ok {
		return nil, errors.New("not a presentation: missing " + presentationXML)
	}

	var pres presentationDoc
	if err := decodeXML(presFile, &pres); err != nil {
		return nil, fmt.Errorf("parse presentation: %w", err)
	}

	if relFile, ok := files[presentationRel]; ok && len(pres.SlideIDs) > 0 {
		var rels relationshipsDoc
		if err := decodeXML(relFile, &rels); err != nil {
			return nil, fmt.Errorf("parse presentation relationships: %w", err)
		}

		targets := make(map[string]string, len(rels.Relationships))
		for _, rel := range rels.Relationships {
			targets[rel.ID] = rel.Target
		}

		order := make([]string, 0, len(pres.SlideIDs))
		for _, id := range pres.SlideIDs {
			target, ok := targets[id.RelID]
			if !ok {
				return nil, fmt.Errorf("slide relationship %q not found", id.RelID)
			}
			order = append(order, resolvePart(target))
		}
		return order, nil
	}

	type numbered struct {
		name string
		n    int
	}
	var slides []numbered
	for name := range files {
		if m := slideFilePattern.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, numbered{name: name, n: n})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	order := make([]string, 0, len(slides))
	for _, s := range slides {
		order = append(order, s.name)
	}
	return order, nil
}

func resolvePart(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("ppt", target)
}

func decodeXML(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// readSlide walks the slide tree and returns its shapes in document order.
// Group containers are transparent: their children are reported directly.
func readSlide(f *zip.File) ([]shape, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)

	var (
		shapes     []shape
		cur        *shape
		text       strings.Builder
		depth      int
		shapeDepth int
		paragraphs int
		inRun      bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if cur == nil {
				if kind, ok := shapeKinds[t.Name.Local]; ok && t.Name.Space == nsPresentation {
					cur = &shape{kind: kind}
					shapeDepth = depth
					paragraphs = 0
					text.Reset()
				}
				continue
			}

			switch {
			case t.Name.Space == nsPresentation && t.Name.Local == "txBody" && cur.kind == shapeAuto:
				cur.kind = shapeText
			case cur.kind != shapeText || t.Name.Space != nsDrawing:
			case t.Name.Local == "p":
				if paragraphs > 0 {
					text.WriteString("\n")
				}
				paragraphs++
			case t.Name.Local == "br":
				text.WriteString("\n")
			case t.Name.Local == "t":
				inRun = true
			}

		case xml.CharData:
			if inRun {
				text.Write(t)
			}

		case xml.EndElement:
			if t.Name.Space == nsDrawing && t.Name.Local == "t" {
				inRun = false
			}
			if cur != nil && depth == shapeDepth {
				cur.text = text.String()
				shapes = append(shapes, *cur)
				cur = nil
			}
			depth--
		}
	}

	return shapes, nil
}
