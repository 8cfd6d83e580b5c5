package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// GrantSource identifies where an entitlement grant came from.
type GrantSource string

const (
	GrantSourceProduct      GrantSource = "product"
	GrantSourceAddon        GrantSource = "addon"
	GrantSourcePromotion    GrantSource = "promotion"
	GrantSourceCompensation GrantSource = "compensation"
)

// grantSourceRank orders sources for consumption attribution. Higher
// rank is consumed first. The aggregate balance is source-agnostic;
// the rank only decides which grant a consumption is attributed to.
var grantSourceRank = map[GrantSource]int{
	GrantSourceProduct:      4,
	GrantSourceAddon:        3,
	GrantSourcePromotion:    2,
	GrantSourceCompensation: 1,
}

// Rank returns the consumption priority of the source (unknown sources rank 0).
func (s GrantSource) Rank() int {
	return grantSourceRank[s]
}

// Valid reports whether the source is one of the known values.
func (s GrantSource) Valid() bool {
	_, ok := grantSourceRank[s]
	return ok
}

// OriginItem traces a grant back to the catalog item that produced it.
type OriginItem struct {
	ItemID     string `json:"item_id"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Label      string `json:"label,omitempty"`
}

// OriginItems is stored as a JSONB column.
type OriginItems []OriginItem

// Value implements driver.Valuer.
func (o OriginItems) Value() (driver.Value, error) {
	if o == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Scan implements sql.Scanner.
func (o *OriginItems) Scan(src interface{}) error {
	if src == nil {
		*o = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("origin items: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, o)
}

// EntitlementGrant is an immutable quantity of a service type granted
// to a student from one source. Grants are never updated; they are
// logically retired only by contract termination, which is outside
// this service.
type EntitlementGrant struct {
	ID          string      `db:"id" json:"id"`
	StudentID   string      `db:"student_id" json:"student_id"`
	ServiceType string      `db:"service_type" json:"service_type"`
	Source      GrantSource `db:"source" json:"source"`
	Quantity    int         `db:"quantity" json:"quantity"`
	OriginItems OriginItems `db:"origin_items" json:"origin_items,omitempty"`
	CreatedBy   string      `db:"created_by" json:"created_by"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}
