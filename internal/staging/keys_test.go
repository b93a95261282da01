package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/entity"
)

func TestKeyer_RoleOf(t *testing.T) {
	k := newKeyer("bizcards", fixedNow)
	ns := entity.ProcessID("0b7c9d3e-0000-4000-8000-000000000000")

	key, _ := k.object(ns, constants.RoleHearing, "/tmp/x/メモ 1.jpeg")
	assert.Equal(t, "bizcards/"+string(ns)+"/images/hearing/00000001_メモ_1_20250403_102030.jpeg", key)

	role, ok := k.roleOf(ns, key)
	assert.True(t, ok)
	assert.Equal(t, constants.RoleHearing, role)

	_, ok = k.roleOf(ns, k.manifest(ns))
	assert.False(t, ok)
	_, ok = k.roleOf(ns, "bizcards/"+string(ns)+"/images/other/x.png")
	assert.False(t, ok)
	_, ok = k.roleOf("another", key)
	assert.False(t, ok)
}

func TestPublicURL_EscapesSegments(t *testing.T) {
	got := publicURL("https://example.com/base/", "ns/images/card/001_名刺_x.png")
	assert.Equal(t, "https://example.com/base/ns/images/card/001_%E5%90%8D%E5%88%BA_x.png", got)
}
