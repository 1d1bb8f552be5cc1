package generator

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/devro-ai/devro/internal/ai"
)

// packageProject writes the generated files into an in-memory ZIP. Entry
// order follows the provider's file order; paths were already validated
// against traversal by the provider.
func packageProject(project *ai.GeneratedProject) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range project.Files {
		w, err := zw.Create(f.Path)
		if err != nil {
			return nil, fmt.Errorf("zip entry %q: %w", f.Path, err)
		}
		if _, err := w.Write([]byte(f.Content)); err != nil {
			return nil, fmt.Errorf("zip write %q: %w", f.Path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	return buf.Bytes(), nil
}
