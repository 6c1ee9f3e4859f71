package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/dmitrijs2005/fundkeeper/internal/common"
)

// FormatJPEG is the only artifact format produced.
const FormatJPEG = "image/jpeg"

// Artifact is a normalized image.
type Artifact struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// DataURL renders the artifact as data:<format>;base64,<payload>.
func (a *Artifact) DataURL() string {
	return "data:" + a.Format + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// ParseDataURL reverses DataURL. Width and Height are read from the
// encoded image header.
func ParseDataURL(s string) (*Artifact, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, &common.DecodeError{Err: fmt.Errorf("not a data URL")}
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, &common.DecodeError{Err: fmt.Errorf("data URL has no payload")}
	}

	format, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, &common.DecodeError{Err: fmt.Errorf("data URL is not base64 encoded")}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &common.DecodeError{Err: err}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &common.DecodeError{Err: err}
	}

	return &Artifact{Format: format, Width: cfg.Width, Height: cfg.Height, Data: data}, nil
}
