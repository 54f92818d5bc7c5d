package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// OpenGraylog connects a GELF UDP writer to the given Graylog address.
// The returned writer can be passed to Setup as an extra output.
func OpenGraylog(address string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("error connecting to graylog at %s: %w", address, err)
	}
	w.CompressionType = gelf.CompressGzip
	return w, nil
}
