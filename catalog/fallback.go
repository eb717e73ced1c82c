package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/thiskanishk/healthassist-cds/entities"
)

//go:embed fallback_data.json
var fallbackJSON []byte

// FallbackDataset returns a fresh copy of the bundled reference dataset served
// when the backing store cannot be used.
func FallbackDataset() (*entities.CatalogDataset, error) {
	var ds entities.CatalogDataset
	if err := json.Unmarshal(fallbackJSON, &ds); err != nil {
		return nil, fmt.Errorf("decode bundled dataset: %w", err)
	}
	return &ds, nil
}
