package llm

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/cardlead/constants"
)

// MaxInlineImageBytes caps images sent inline as data URLs.
const MaxInlineImageBytes = 20 << 20

// ResolveImageURL passes http(s) and data URLs through and inlines local files
// (plain paths or file:// URLs) as base64 data URLs.
func ResolveImageURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("empty image reference")
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "data:"):
		return ref, nil
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("parse file url: %w", err)
		}
		ref = u.Path
	}
	u, _, err := readAsDataURL(ref)
	return u, err
}

func readAsDataURL(path string) (string, string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", "", err
	}
	if st.Size() > MaxInlineImageBytes {
		return "", "", fmt.Errorf("image %s is %d bytes, over the %d byte inline limit", path, st.Size(), MaxInlineImageBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	mt := constants.ContentTypeFor(filepath.Ext(path))
	data := base64.StdEncoding.EncodeToString(b)
	return "data:" + mt + ";base64," + data, mt, nil
}
