package staging

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/entity"
)

const (
	manifestName = "metadata.json"
	imagesDir    = "images"
	keyTimeFmt   = "20060102_150405"
)

// keyer builds object keys. The sequence makes keys unique within one store
// even when two uploads share a name and a second.
type keyer struct {
	prefix string
	seq    atomic.Uint64
	now    func() time.Time
}

func newKeyer(prefix string, now func() time.Time) *keyer {
	if now == nil {
		now = time.Now
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &keyer{prefix: prefix, now: now}
}

// namespace returns the key prefix shared by every object of ns.
func (k *keyer) namespace(ns entity.ProcessID) string {
	return k.prefix + string(ns) + "/"
}

func (k *keyer) manifest(ns entity.ProcessID) string {
	return k.namespace(ns) + manifestName
}

// object returns <prefix><ns>/images/<role>/<seq>_<name>_<timestamp><ext>.
func (k *keyer) object(ns entity.ProcessID, role constants.AssetRole, localPath string) (string, time.Time) {
	at := k.now()
	base := filepath.Base(localPath)
	ext := strings.ToLower(filepath.Ext(base))
	name := sanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
	n := k.seq.Add(1)
	return fmt.Sprintf("%s%s/%s/%08d_%s_%s%s",
		k.namespace(ns), imagesDir, role, n, name, at.Format(keyTimeFmt), ext), at
}

// roleOf extracts the role segment of an object key under ns. ok is false for
// keys that are not staged images.
func (k *keyer) roleOf(ns entity.ProcessID, key string) (constants.AssetRole, bool) {
	rest, found := strings.CutPrefix(key, k.namespace(ns)+imagesDir+"/")
	if !found {
		return "", false
	}
	role, file, found := strings.Cut(rest, "/")
	if !found || file == "" || strings.Contains(file, "/") {
		return "", false
	}
	switch constants.AssetRole(role) {
	case constants.RoleCard, constants.RoleHearing:
		return constants.AssetRole(role), true
	}
	return "", false
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "image"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '　', '?', '#', '%':
			return '_'
		}
		return r
	}, name)
}

// publicURL joins base and key, escaping every key segment.
func publicURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + path.Join(parts...)
}

func sortAssets(assets []Asset) {
	sort.SliceStable(assets, func(i, j int) bool {
		return path.Base(assets[i].Key) < path.Base(assets[j].Key)
	})
}
