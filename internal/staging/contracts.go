package staging

import (
	"context"
	"time"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/entity"
)

// Store is the remote object store images are staged in before they are read
// by the extraction service and referenced from the published record.
type Store interface {
	// Put uploads the file at localPath under namespace ns and role.
	Put(ctx context.Context, ns entity.ProcessID, role constants.AssetRole, localPath string) (entity.StagedRef, error)
	// ListAssets returns the images staged under ns ordered by staging order.
	ListAssets(ctx context.Context, ns entity.ProcessID) ([]Asset, error)
	// Delete removes everything staged under ns.
	Delete(ctx context.Context, ns entity.ProcessID) error
}

// Asset is one staged image as reported by ListAssets.
type Asset struct {
	Role       constants.AssetRole `json:"role"`
	Key        string              `json:"key"`
	URL        string              `json:"url"`
	Size       int64               `json:"size"`
	UploadedAt time.Time           `json:"uploaded_at"`
}

// Manifest is written as metadata.json the first time a namespace is used.
type Manifest struct {
	ProcessID   entity.ProcessID `json:"process_id"`
	ProcessName string           `json:"process_name"`
	CreatedAt   time.Time        `json:"created_at"`
}

// FirstOfRole returns the first asset with role, or nil.
func FirstOfRole(assets []Asset, role constants.AssetRole) *Asset {
	for i := range assets {
		if assets[i].Role == role {
			return &assets[i]
		}
	}
	return nil
}

// OfRole returns the assets with role, keeping their order.
func OfRole(assets []Asset, role constants.AssetRole) []Asset {
	var out []Asset
	for _, a := range assets {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}
