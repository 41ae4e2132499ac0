package api

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Page is an opaque cursor over an offset-paged listing. Send an empty
// NextMarker for the first page and the returned marker afterwards.
type Page struct {
	NextMarker string `query:"next_marker" json:"next_marker"`
	Size       int    `query:"size" json:"size" validate:"omitempty,min=1,max=500"`
}

// Offset decodes the marker; an empty marker is offset zero.
func (p Page) Offset() (int, error) {
	return MarkerToIdx(p.NextMarker)
}

// Next returns the marker of the page after one that returned n rows, or ""
// when that page was the last one.
func (p Page) Next(n int) (string, error) {
	if n < p.Size {
		return "", nil
	}
	idx, err := p.Offset()
	if err != nil {
		return "", err
	}
	return MarkerFromIdx(idx + p.Size), nil
}

func MarkerFromIdx(idx int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%d", idx)))
}

func MarkerToIdx(marker string) (int, error) {
	if len(strings.TrimSpace(marker)) == 0 {
		return 0, nil
	}

	b, err := base64.StdEncoding.DecodeString(marker)
	if err != nil {
		return 0, fmt.Errorf("invalid marker: %w", err)
	}

	i, err := strconv.Atoi(string(b))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid marker %q", marker)
	}
	return i, nil
}
