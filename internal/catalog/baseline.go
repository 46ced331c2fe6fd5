package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/catalog_api/internal/models"
)

//go:embed baseline.json
var embeddedBaseline []byte

// LoadBaseline returns the static baseline catalog. When path is non-empty the
// baseline is read from that file instead of the embedded copy.
func LoadBaseline(path string) ([]models.Product, error) {
	data := embeddedBaseline
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read baseline catalog: %w", err)
		}
		data = b
	}

	products, err := ParseBaseline(data)
	if err != nil {
		return nil, err
	}
	log.Info().Int("products", len(products)).Str("path", path).Msg("Static baseline catalog loaded")
	return products, nil
}

// ParseBaseline decodes a JSON array of products and rejects duplicate or empty ids.
func ParseBaseline(data []byte) ([]models.Product, error) {
	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode baseline catalog: %w", err)
	}

	ids := make(map[string]struct{}, len(products))
	for i, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("baseline product at index %d has no id", i)
		}
		if _, dup := ids[p.ID]; dup {
			return nil, fmt.Errorf("baseline product id %q is duplicated", p.ID)
		}
		ids[p.ID] = struct{}{}
	}
	return products, nil
}
