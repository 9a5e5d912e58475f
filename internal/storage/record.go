package storage

import (
	"fmt"
	"time"
)

// AnimalRecord is the serialized shape of an Animal: the element type of the
// blob backend's JSON array and the HTTP API body.
type AnimalRecord struct {
	ID   string `json:"id,omitempty"`
	Tag  string `json:"tag"`
	Type string `json:"type"`
	Sex  string `json:"sex"`

	Breed       string `json:"breed,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Lot         string `json:"lot,omitempty"`
	Pasture     string `json:"pasture,omitempty"`
	Supplier    string `json:"supplier,omitempty"`
	Buyer       string `json:"buyer,omitempty"`
	SireTag     string `json:"sireTag,omitempty"`
	DamTag      string `json:"damTag,omitempty"`
	CauseMortis string `json:"causeMortis,omitempty"`
	Notes       string `json:"notes,omitempty"`

	PurchaseDate         string `json:"purchaseDate,omitempty"`
	BirthDate            string `json:"birthDate,omitempty"`
	WeaningDate          string `json:"weaningDate,omitempty"`
	SaleDate             string `json:"saleDate,omitempty"`
	PastureStartDate     string `json:"pastureStartDate,omitempty"`
	ConfinementStartDate string `json:"confinementStartDate,omitempty"`

	WeightKg   *float64 `json:"weightKg,omitempty"`
	PriceValue *float64 `json:"priceValue,omitempty"`

	UpdatedAt string `json:"updatedAt,omitempty"`
	Version   int64  `json:"version"`
}

func ToRecord(a Animal) AnimalRecord {
	r := AnimalRecord{
		ID:                   a.ID,
		Tag:                  a.Tag,
		Type:                 string(a.Type),
		Sex:                  string(a.Sex),
		Breed:                a.Breed,
		Origin:               a.Origin,
		Lot:                  a.Lot,
		Pasture:              a.Pasture,
		Supplier:             a.Supplier,
		Buyer:                a.Buyer,
		SireTag:              a.SireTag,
		DamTag:               a.DamTag,
		CauseMortis:          a.CauseMortis,
		Notes:                a.Notes,
		PurchaseDate:         fmtDate(a.PurchaseDate),
		BirthDate:            fmtDate(a.BirthDate),
		WeaningDate:          fmtDate(a.WeaningDate),
		SaleDate:             fmtDate(a.SaleDate),
		PastureStartDate:     fmtDate(a.PastureStartDate),
		ConfinementStartDate: fmtDate(a.ConfinementStartDate),
		WeightKg:             copyFloat(a.WeightKg),
		PriceValue:           copyFloat(a.PriceValue),
		Version:              a.Version,
	}
	if !a.UpdatedAt.IsZero() {
		r.UpdatedAt = fmtTimestamp(a.UpdatedAt)
	}
	return r
}

// FromRecord parses a serialized record. Type and sex are carried as given;
// Animal.Validate decides whether they are acceptable.
func FromRecord(r AnimalRecord) (Animal, error) {
	a := Animal{
		ID:          r.ID,
		Tag:         r.Tag,
		Type:        AnimalType(r.Type),
		Sex:         Sex(r.Sex),
		Breed:       r.Breed,
		Origin:      r.Origin,
		Lot:         r.Lot,
		Pasture:     r.Pasture,
		Supplier:    r.Supplier,
		Buyer:       r.Buyer,
		SireTag:     r.SireTag,
		DamTag:      r.DamTag,
		CauseMortis: r.CauseMortis,
		Notes:       r.Notes,
		WeightKg:    copyFloat(r.WeightKg),
		PriceValue:  copyFloat(r.PriceValue),
		Version:     r.Version,
	}

	dates := []struct {
		field  string
		raw    string
		target **time.Time
	}{
		{"purchaseDate", r.PurchaseDate, &a.PurchaseDate},
		{"birthDate", r.BirthDate, &a.BirthDate},
		{"weaningDate", r.WeaningDate, &a.WeaningDate},
		{"saleDate", r.SaleDate, &a.SaleDate},
		{"pastureStartDate", r.PastureStartDate, &a.PastureStartDate},
		{"confinementStartDate", r.ConfinementStartDate, &a.ConfinementStartDate},
	}
	for _, d := range dates {
		t, err := parseDate(d.raw)
		if err != nil {
			return Animal{}, fmt.Errorf("%w: %s: %v", ErrInvalidInput, d.field, err)
		}
		*d.target = t
	}

	if r.UpdatedAt != "" {
		t, err := parseTimestamp(r.UpdatedAt)
		if err != nil {
			return Animal{}, fmt.Errorf("%w: updatedAt: %v", ErrInvalidInput, err)
		}
		a.UpdatedAt = t
	}
	return a, nil
}
