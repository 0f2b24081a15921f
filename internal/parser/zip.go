package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/dgallion1/docread/internal/convert"
)

// openZip opens a zip container, mapping failures to ParseErrors.
func openZip(p string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		if isNotExist(err) {
			return nil, newError(CodeNotFound, p, err)
		}
		return nil, newError(CodeMalformedMarkup, p, fmt.Errorf("open zip: %w", err))
	}
	return zr, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	name = strings.TrimPrefix(path.Clean(name), "/")
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	// Some producers vary the case of member names.
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// readZipFile returns the content of the named member.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f := findZipFile(zr, name)
	if f == nil {
		return nil, newError(CodeNotFound, name, fmt.Errorf("missing archive member"))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, newError(CodeInternal, name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, newError(CodeInternal, name, err)
	}
	return data, nil
}

// readZipXML parses the named member as XML.
func readZipXML(zr *zip.Reader, name string) (*xmlquery.Node, error) {
	data, err := readZipFile(zr, name)
	if err != nil {
		return nil, err
	}
	doc, err := convert.ParseXML(bytes.NewReader(data), false)
	if err != nil {
		return nil, newError(CodeMalformedMarkup, name, err)
	}
	return doc, nil
}
