package entity

import (
	"time"

	"github.com/joseph-ayodele/cardlead/constants"
)

// StagedRef describes where a staged object lives.
type StagedRef struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ImageAsset is one image owned by a pipeline run. The local copy is removed
// when the run ends; the staged copy outlives it.
type ImageAsset struct {
	LocalPath string              `json:"local_path"`
	Role      constants.AssetRole `json:"role"`
	Staged    *StagedRef          `json:"staged,omitempty"`
}

// IsStaged reports whether the asset has been uploaded.
func (a ImageAsset) IsStaged() bool {
	return a.Staged != nil && a.Staged.URL != ""
}
