package vendordict

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/quicksearch/internal/fuzzy"
	"github.com/smallbiznis/quicksearch/internal/textnorm"
)

const DefaultMatchThreshold = 70.0

type MatchMethod string

const (
	MatchBySKU  MatchMethod = "sku"
	MatchByName MatchMethod = "name"
)

// Resolver maps a vendor offer to its canonical identity.
type Resolver interface {
	Resolve(vendor, offeredName, sku string) *Match
	NormalizeVendor(vendor string) string
}

// Match is the canonical identity an offer resolved to.
type Match struct {
	Key           string
	CanonicalName string
	Category      string
	Vendor        string
	Method        MatchMethod
	Score         float64
}

// Listing is how one vendor lists a canonical product. An empty Description
// means the vendor does not list it under a name we can match.
type Listing struct {
	Vendor      string   `mapstructure:"vendor"`
	Description string   `mapstructure:"description"`
	SKUs        []string `mapstructure:"skus"`

	normalized string
	skus       map[string]struct{}
}

type Entry struct {
	Key           string    `mapstructure:"key"`
	CanonicalName string    `mapstructure:"canonical_name"`
	Category      string    `mapstructure:"category"`
	Listings      []Listing `mapstructure:"listings"`

	byVendor map[string]*Listing
}

// VendorAlias maps any vendor name containing one of Contains to ID.
type VendorAlias struct {
	ID       string   `mapstructure:"id"`
	Contains []string `mapstructure:"contains"`
}

// Dictionary is immutable once built; replace it as a whole to change it.
type Dictionary struct {
	MatchThreshold float64       `mapstructure:"match_threshold"`
	Vendors        []VendorAlias `mapstructure:"vendors"`
	Entries        []Entry       `mapstructure:"entries"`
}

var (
	ErrEmptyDictionary = errors.New("vendor dictionary has no entries")
	ErrInvalidEntry    = errors.New("invalid_dictionary_entry")
)

// build validates the decoded dictionary and precomputes lookup state.
func (d *Dictionary) build() error {
	if len(d.Entries) == 0 {
		return ErrEmptyDictionary
	}
	if d.MatchThreshold <= 0 {
		d.MatchThreshold = DefaultMatchThreshold
	}

	seen := make(map[string]struct{}, len(d.Entries))
	for i := range d.Entries {
		entry := &d.Entries[i]
		entry.Key = strings.TrimSpace(entry.Key)
		entry.CanonicalName = strings.TrimSpace(entry.CanonicalName)
		if entry.Key == "" || entry.CanonicalName == "" {
			return fmt.Errorf("%w: entry %d needs key and canonical_name", ErrInvalidEntry, i)
		}
		if _, dup := seen[entry.Key]; dup {
			return fmt.Errorf("%w: duplicate key %s", ErrInvalidEntry, entry.Key)
		}
		seen[entry.Key] = struct{}{}

		entry.byVendor = make(map[string]*Listing, len(entry.Listings))
		for j := range entry.Listings {
			listing := &entry.Listings[j]
			listing.Vendor = strings.TrimSpace(listing.Vendor)
			listing.normalized = textnorm.Normalize(listing.Description)
			listing.skus = make(map[string]struct{}, len(listing.SKUs))
			for _, sku := range listing.SKUs {
				if sku = strings.TrimSpace(sku); sku != "" {
					listing.skus[sku] = struct{}{}
				}
			}
			entry.byVendor[listing.Vendor] = listing
		}
	}
	return nil
}

// NormalizeVendor maps a free-form vendor name to a known vendor identifier.
// Unknown vendors come back trimmed but otherwise unchanged.
func (d *Dictionary) NormalizeVendor(vendor string) string {
	trimmed := strings.TrimSpace(vendor)
	upper := strings.ToUpper(trimmed)
	for _, alias := range d.Vendors {
		for _, needle := range alias.Contains {
			if needle != "" && strings.Contains(upper, strings.ToUpper(needle)) {
				return alias.ID
			}
		}
	}
	return trimmed
}

// Resolve runs the SKU pass over the whole dictionary, then the name pass.
// The name pass returns the first entry, in declaration order, that clears
// the threshold; it does not look for the best scoring entry.
func (d *Dictionary) Resolve(vendor, offeredName, sku string) *Match {
	vendorID := d.NormalizeVendor(vendor)

	if sku = strings.TrimSpace(sku); sku != "" {
		for i := range d.Entries {
			entry := &d.Entries[i]
			listing := entry.byVendor[vendorID]
			if listing == nil {
				continue
			}
			if _, ok := listing.skus[sku]; ok {
				return entry.match(vendorID, MatchBySKU, 100)
			}
		}
	}

	name := textnorm.Normalize(offeredName)
	if name == "" {
		return nil
	}
	for i := range d.Entries {
		entry := &d.Entries[i]
		listing := entry.byVendor[vendorID]
		if listing == nil || listing.normalized == "" {
			continue
		}
		if score := fuzzy.PartialRatio(name, listing.normalized); score >= d.MatchThreshold {
			return entry.match(vendorID, MatchByName, score)
		}
	}
	return nil
}

// Lookup returns the entry with the given canonical key.
func (d *Dictionary) Lookup(key string) (Entry, bool) {
	for _, entry := range d.Entries {
		if entry.Key == key {
			return entry, true
		}
	}
	return Entry{}, false
}

func (e *Entry) match(vendor string, method MatchMethod, score float64) *Match {
	return &Match{
		Key:           e.Key,
		CanonicalName: e.CanonicalName,
		Category:      e.Category,
		Vendor:        vendor,
		Method:        method,
		Score:         score,
	}
}
