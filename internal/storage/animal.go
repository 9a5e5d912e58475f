package storage

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Validate reports the first precondition an upsert input violates.
func (a Animal) Validate() error {
	if strings.TrimSpace(a.Tag) == "" {
		return fmt.Errorf("%w: tag is required", ErrInvalidInput)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown animal type %q", ErrInvalidInput, a.Type)
	}
	if !a.Sex.Valid() {
		return fmt.Errorf("%w: unknown sex %q", ErrInvalidInput, a.Sex)
	}
	if a.WeightKg != nil && !isFinite(*a.WeightKg) {
		return fmt.Errorf("%w: weightKg must be a finite number", ErrInvalidInput)
	}
	if a.PriceValue != nil && !isFinite(*a.PriceValue) {
		return fmt.Errorf("%w: priceValue must be a finite number", ErrInvalidInput)
	}
	if a.Version < 0 {
		return fmt.Errorf("%w: version must not be negative", ErrInvalidInput)
	}
	if a.Version == math.MaxInt64 {
		return fmt.Errorf("%w: version %d cannot be incremented", ErrInvalidInput, a.Version)
	}
	for _, d := range []struct {
		name string
		date *time.Time
	}{
		{"purchaseDate", a.PurchaseDate},
		{"birthDate", a.BirthDate},
		{"weaningDate", a.WeaningDate},
		{"saleDate", a.SaleDate},
		{"pastureStartDate", a.PastureStartDate},
		{"confinementStartDate", a.ConfinementStartDate},
	} {
		if d.date == nil {
			continue
		}
		// Dates are stored as YYYY-MM-DD, which only holds four-digit years.
		if year := d.date.UTC().Year(); year < 0 || year > 9999 {
			return fmt.Errorf("%w: %s year %d is outside 0000-9999", ErrInvalidInput, d.name, year)
		}
	}
	return nil
}

// normalized returns the record in the exact shape both backends read back.
func (a Animal) normalized() Animal {
	out := a
	out.Tag = strings.TrimSpace(a.Tag)
	out.PurchaseDate = normalizeDate(a.PurchaseDate)
	out.BirthDate = normalizeDate(a.BirthDate)
	out.WeaningDate = normalizeDate(a.WeaningDate)
	out.SaleDate = normalizeDate(a.SaleDate)
	out.PastureStartDate = normalizeDate(a.PastureStartDate)
	out.ConfinementStartDate = normalizeDate(a.ConfinementStartDate)
	out.WeightKg = copyFloat(a.WeightKg)
	out.PriceValue = copyFloat(a.PriceValue)
	out.UpdatedAt = truncateTimestamp(a.UpdatedAt)
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// ParseAnimalType accepts the stored spelling case-insensitively.
func ParseAnimalType(raw string) (AnimalType, error) {
	t := AnimalType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown animal type %q", ErrInvalidInput, raw)
	}
	return t, nil
}

func ParseSex(raw string) (Sex, error) {
	s := Sex(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown sex %q", ErrInvalidInput, raw)
	}
	return s, nil
}

func sortAnimals(items []Animal) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].Tag < items[j].Tag
	})
}
