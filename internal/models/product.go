package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// StockStatus enumerates the supported stock states.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

// Valid reports whether s is one of the known stock states.
func (s StockStatus) Valid() bool {
	switch s {
	case StockInStock, StockLowStock, StockOutOfStock:
		return true
	}
	return false
}

// Stock is stored as a JSONB column.
type Stock struct {
	Quantity int         `json:"quantity"`
	Status   StockStatus `json:"status"`
}

// Product represents a product definition in the catalog.
// ID is the merge key shared by the static baseline and the remote store.
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Category    string          `db:"category" json:"category"`
	SubCategory *string         `db:"sub_category" json:"subCategory,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	MRP         decimal.Decimal `db:"mrp" json:"mrp"`
	Image       string          `db:"image" json:"image"`
	Gallery     StringList      `db:"gallery" json:"gallery"`
	Stock       Stock           `db:"stock" json:"stock"`
	Colors      StringList      `db:"colors" json:"colors"`
	Specs       Specs           `db:"specs" json:"specs"`
	Description string          `db:"description" json:"description,omitempty"`
	Brand       string          `db:"brand" json:"brand,omitempty"`
	AgeRange    string          `db:"age_range" json:"ageRange,omitempty"`
	Tags        StringList      `db:"tags" json:"tags,omitempty"`
	IsFeatured  bool            `db:"is_featured" json:"isFeatured"`
	IsNew       bool            `db:"is_new" json:"isNew"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt,omitempty"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt,omitempty"`
}

// PriceWithinMRP reports whether the selling price does not exceed the MRP.
func (p *Product) PriceWithinMRP() bool {
	return p.Price.LessThanOrEqual(p.MRP)
}

// DeletedID is a tombstone excluding a product id from the canonical catalog.
type DeletedID struct {
	ID        string    `db:"id" json:"id"`
	DeletedAt time.Time `db:"deleted_at" json:"deletedAt"`
}

// CacheEntry is the memoized result of a successful remote fetch.
type CacheEntry struct {
	Products   []Product `json:"products"`
	DeletedIDs []string  `json:"deletedIds"`
	Timestamp  time.Time `json:"timestamp"`
}

// StringList is a []string stored as a JSONB array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Specs holds free-form technical attributes (frame size, gears, ...).
type Specs map[string]string

// Value implements driver.Valuer.
func (s Specs) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(s))
}

// Scan implements sql.Scanner.
func (s *Specs) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Value implements driver.Valuer.
func (s Stock) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *Stock) Scan(src interface{}) error {
	return scanJSON(src, s)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported JSONB source type")
	}
}
