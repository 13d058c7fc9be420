package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// A .docx attachment is a zip package. [Content_Types].xml names the part
// holding the document body; word/document.xml is the conventional default.
const (
	docxContentTypesPart = "[Content_Types].xml"
	docxDefaultBodyPart  = "word/document.xml"
	docxBodyContentType  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// extractDOCX pulls the text runs out of a .docx attachment so the body is
// searchable regardless of paragraph or run formatting.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open DOCX: %w", err)
	}
	part := docxBodyPart(zr)
	body, err := readZipPart(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	text, err := docxTextRuns(body)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", part, err)
	}
	return text, nil
}

// docxOverride is one Override element of [Content_Types].xml.
type docxOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// docxBodyPart resolves the body part name from the package's content
// types. Packages without a usable [Content_Types].xml fall back to the
// conventional path.
func docxBodyPart(zr *zip.Reader) string {
	data, err := readZipPart(zr, docxContentTypesPart)
	if err != nil {
		return docxDefaultBodyPart
	}
	var types struct {
		Overrides []docxOverride `xml:"Override"`
	}
	if err := xml.Unmarshal(data, &types); err != nil {
		return docxDefaultBodyPart
	}
	for _, o := range types.Overrides {
		if o.ContentType == docxBodyContentType && o.PartName != "" {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return docxDefaultBodyPart
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		data, err := io.ReadAll(rc)
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, errors.New(name + " not found")
}

// docxTextRuns walks the OOXML token stream and joins the character data of
// every <w:t> element with single spaces.
func docxTextRuns(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var runs []string
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if isTextRunElement(t.Name) {
				depth++
			}
		case xml.EndElement:
			if isTextRunElement(t.Name) && depth > 0 {
				depth--
			}
		case xml.CharData:
			if depth > 0 {
				if s := strings.TrimSpace(string(t)); s != "" {
					runs = append(runs, s)
				}
			}
		}
	}
	return strings.Join(runs, " "), nil
}

// isTextRunElement reports whether name is a wordprocessing <w:t> element.
// The namespace is matched loosely: strict documents resolve the w prefix
// to the wordprocessingml URI, but some producers leave it undeclared.
func isTextRunElement(name xml.Name) bool {
	if name.Local != "t" {
		return false
	}
	return name.Space == "w" || strings.Contains(name.Space, "wordprocessingml")
}
