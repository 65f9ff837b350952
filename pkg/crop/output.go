package crop

import (
	"context"
	"strings"
)

// FilenamePrefix starts every exported file name.
const FilenamePrefix = "instaratio_processed_"

// Output is an encoded crop result.
type Output struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Ext returns the file extension for the output, taken from the MIME subtype.
func (o *Output) Ext() string {
	if _, sub, ok := strings.Cut(o.MIMEType, "/"); ok && sub != "" {
		return sub
	}
	return "png"
}

// Sink receives exported files. Implementations decide where the bytes land.
type Sink interface {
	Save(ctx context.Context, filename string, data []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, filename string, data []byte) error

// Save calls f.
func (f SinkFunc) Save(ctx context.Context, filename string, data []byte) error {
	return f(ctx, filename, data)
}

// Sanitize replaces every character outside [A-Za-z0-9] with an underscore.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Filename builds the download name for a preset and extension.
func Filename(presetName, ext string) string {
	return FilenamePrefix + Sanitize(presetName) + "." + ext
}
