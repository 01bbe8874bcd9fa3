package bridge

import (
	_ "embed"
)

// Page functions shared by every Tab implementation. Each one takes a single
// argument object and returns a JSON string.

//go:embed scripts/storage_get.js
var storageGetScript string

//go:embed scripts/storage_set.js
var storageSetScript string

//go:embed scripts/storage_remove.js
var storageRemoveScript string

//go:embed scripts/location.js
var locationScript string

//go:embed scripts/banner.js
var bannerScript string

type getItemResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

type bannerResult struct {
	Injected bool `json:"injected"`
}
