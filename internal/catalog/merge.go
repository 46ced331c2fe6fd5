// Package catalog holds the static baseline catalog and the reconciliation of
// the baseline with the remote store.
package catalog

import "github.com/GTDGit/catalog_api/internal/models"

// Merge reconciles remote products, the static baseline and the tombstone list
// into the canonical product list.
//
// Tombstoned ids never appear. Remote entries come first in their given order and
// take precedence by id; duplicate ids inside remote are kept as-is. Static entries
// whose id is neither remote nor tombstoned are appended in baseline order.
func Merge(remote, static []models.Product, deletedIDs []string) []models.Product {
	deleted := make(map[string]struct{}, len(deletedIDs))
	for _, id := range deletedIDs {
		deleted[id] = struct{}{}
	}

	out := make([]models.Product, 0, len(remote)+len(static))
	seen := make(map[string]struct{}, len(remote))
	for _, p := range remote {
		seen[p.ID] = struct{}{}
		if _, gone := deleted[p.ID]; gone {
			continue
		}
		out = append(out, p)
	}

	for _, p := range static {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		if _, gone := deleted[p.ID]; gone {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FilterByCategory returns the products whose category matches exactly.
// An empty category returns the input unchanged.
func FilterByCategory(products []models.Product, category string) []models.Product {
	if category == "" {
		return products
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// FindByID returns the first product with the given id.
func FindByID(products []models.Product, id string) (models.Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}
