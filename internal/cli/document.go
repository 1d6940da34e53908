package cli

import (
	"bytes"
	"os"

	"github.com/natefinch/atomic"

	"github.com/rcliao/formsync/internal/dom"
)

func readDocument(path string) (*dom.HTMLDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dom.ParseHTML(f)
}

// writeDocument renders doc to path, replacing the file atomically.
func writeDocument(path string, doc *dom.HTMLDocument) error {
	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return err
	}
	return atomic.WriteFile(path, &buf)
}
