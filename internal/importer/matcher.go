package importer

import (
	"fmt"
	"path"
	"strings"

	"github.com/GTDGit/catalog_api/internal/models"
)

// Strategy selects how selected images are associated with spreadsheet rows.
// It is a closed set: EmbeddedStrategy, RowOrderStrategy, FilenameStrategy.
type Strategy interface {
	Method() models.ImportMethod
	strategy()
}

// EmbeddedStrategy forwards the spreadsheet untouched; pictures inside the
// workbook are extracted by the store.
type EmbeddedStrategy struct{}

// RowOrderStrategy assigns the Nth selected image to the Nth row.
type RowOrderStrategy struct{}

// FilenameStrategy matches images against the filenames referenced in the
// images column.
type FilenameStrategy struct {
	CaseSensitive bool
}

func (EmbeddedStrategy) Method() models.ImportMethod { return models.ImportMethodAuto }
func (RowOrderStrategy) Method() models.ImportMethod { return models.ImportMethodRowOrder }
func (FilenameStrategy) Method() models.ImportMethod { return models.ImportMethodFilename }

func (EmbeddedStrategy) strategy() {}
func (RowOrderStrategy) strategy() {}
func (FilenameStrategy) strategy() {}

// ParseStrategy maps the wire method name to a Strategy. An empty method
// selects filename matching.
func ParseStrategy(method string, caseSensitive bool) (Strategy, error) {
	switch models.ImportMethod(strings.ToLower(strings.TrimSpace(method))) {
	case models.ImportMethodAuto:
		return EmbeddedStrategy{}, nil
	case models.ImportMethodRowOrder:
		return RowOrderStrategy{}, nil
	case models.ImportMethodFilename, "":
		return FilenameStrategy{CaseSensitive: caseSensitive}, nil
	}
	return nil, &ValidationError{Message: fmt.Sprintf("unknown import method %q: use auto, row-order or filename", method)}
}

// FilenameMatch is the result of filename matching.
type FilenameMatch struct {
	Matched   []models.ImageFile
	Unmatched []models.ImageFile
	// MatchedAll is set when no filenames were referenced and every candidate
	// was accepted.
	MatchedAll bool
}

// MatchByFilename keeps the candidates whose filename is referenced. Without
// caseSensitive both sides are lowercased. An empty referenced set matches
// every candidate.
func MatchByFilename(referenced map[string]struct{}, candidates []models.ImageFile, caseSensitive bool) FilenameMatch {
	if len(referenced) == 0 {
		return FilenameMatch{Matched: append([]models.ImageFile(nil), candidates...), MatchedAll: true}
	}

	keys := referenced
	if !caseSensitive {
		keys = make(map[string]struct{}, len(referenced))
		for name := range referenced {
			keys[strings.ToLower(name)] = struct{}{}
		}
	}

	var res FilenameMatch
	for _, img := range candidates {
		name := img.Filename
		if !caseSensitive {
			name = strings.ToLower(name)
		}
		if _, ok := keys[name]; ok {
			res.Matched = append(res.Matched, img)
		} else {
			res.Unmatched = append(res.Unmatched, img)
		}
	}
	return res
}

// RowImage is an image tagged with the row it belongs to.
type RowImage struct {
	Row   int
	Image models.ImageFile
}

// RowOrderMatch is the result of row-order matching.
type RowOrderMatch struct {
	Assigned []RowImage
}

// MatchByRowOrder tags images with their selection index. Rows past the last
// image get nothing; images past the last row keep indices the store ignores.
func MatchByRowOrder(images []models.ImageFile) RowOrderMatch {
	res := RowOrderMatch{Assigned: make([]RowImage, len(images))}
	for i, img := range images {
		res.Assigned[i] = RowImage{Row: i, Image: img}
	}
	return res
}

// CatalogIndex resolves image filenames to existing products.
type CatalogIndex struct {
	keys map[string]string
}

// NewCatalogIndex indexes products by id, name and the basenames of their image
// and gallery URLs, lowercased, each with and without extension. Earlier
// products win on collisions.
func NewCatalogIndex(products []models.Product) *CatalogIndex {
	idx := &CatalogIndex{keys: make(map[string]string, len(products)*4)}
	for _, p := range products {
		idx.add(p.ID, p.ID)
		idx.add(p.Name, p.ID)
		if p.Image != "" {
			idx.add(urlBase(p.Image), p.ID)
		}
		for _, g := range p.Gallery {
			idx.add(urlBase(g), p.ID)
		}
	}
	return idx
}

func (idx *CatalogIndex) add(key, productID string) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return
	}
	for _, k := range []string{key, stripExt(key)} {
		if _, exists := idx.keys[k]; !exists {
			idx.keys[k] = productID
		}
	}
}

// Lookup returns the product id for a filename.
func (idx *CatalogIndex) Lookup(filename string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(filename))
	if id, ok := idx.keys[name]; ok {
		return id, true
	}
	id, ok := idx.keys[stripExt(name)]
	return id, ok
}

// CatalogMatch is the result of matching images against the catalog.
type CatalogMatch struct {
	Matched   []ProductImage
	Unmatched []models.ImageFile
}

// ProductImage is an image resolved to an existing product.
type ProductImage struct {
	ProductID string
	Image     models.ImageFile
}

// Match resolves every image, preserving selection order.
func (idx *CatalogIndex) Match(images []models.ImageFile) CatalogMatch {
	var res CatalogMatch
	for _, img := range images {
		if id, ok := idx.Lookup(img.Filename); ok {
			res.Matched = append(res.Matched, ProductImage{ProductID: id, Image: img})
		} else {
			res.Unmatched = append(res.Unmatched, img)
		}
	}
	return res
}

func urlBase(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return path.Base(raw)
}

func stripExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

func filenames(images []models.ImageFile) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.Filename)
	}
	return out
}
