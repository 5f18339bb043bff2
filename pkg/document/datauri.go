package document

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"strings"
)

// ErrNotImageDataURI is returned when a chart snapshot is not a base64
// image data URI.
var ErrNotImageDataURI = errors.New("chart image is not a base64 image data URI")

// chartImage is a decoded chart snapshot.
type chartImage struct {
	MediaType string
	Data      []byte
	Width     int
	Height    int
}

// decodeChartImage parses data:image/<png|jpeg>;base64,<payload> and checks
// that the payload really is an image of that kind.
func decodeChartImage(uri string) (*chartImage, error) {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "data:") {
		return nil, ErrNotImageDataURI
	}

	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, ErrNotImageDataURI
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]

	params := strings.Split(meta, ";")
	mediaType := strings.ToLower(params[0])
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, ErrNotImageDataURI
	}

	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(p, "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return nil, ErrNotImageDataURI
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some canvas implementations omit padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("chart image payload: %w", err)
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("chart image payload: %w", err)
	}
	if "image/"+format != mediaType && !(format == "jpeg" && mediaType == "image/jpg") {
		return nil, fmt.Errorf("chart image declares %s but contains %s", mediaType, format)
	}

	return &chartImage{
		MediaType: mediaType,
		Data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}
