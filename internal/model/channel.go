package model

import "time"

// PartnerChannel is a named custodial grouping that card funds attach to.
type PartnerChannel struct {
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Assets    []string  `json:"assets"`
	CreatedAt time.Time `json:"created_at"`
}

// HasAsset reports whether the channel account is opted into asset.
func (c *PartnerChannel) HasAsset(asset string) bool {
	return containsAsset(c.Assets, asset)
}

func containsAsset(assets []string, asset string) bool {
	for _, a := range assets {
		if a == asset {
			return true
		}
	}
	return false
}

func removeAsset(assets []string, asset string) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		if a != asset {
			out = append(out, a)
		}
	}
	return out
}

// AddAsset records asset as enabled on the channel.
func (c *PartnerChannel) AddAsset(asset string) {
	if !c.HasAsset(asset) {
		c.Assets = append(c.Assets, asset)
	}
}

// RemoveAsset drops asset from the channel's enabled set.
func (c *PartnerChannel) RemoveAsset(asset string) {
	c.Assets = removeAsset(c.Assets, asset)
}
