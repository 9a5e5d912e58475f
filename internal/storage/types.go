package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSchema          = errors.New("storage: schema unavailable")
	ErrInvalidInput    = errors.New("storage: invalid input")
	ErrVersionConflict = errors.New("storage: version conflict")
	ErrBackendClosed   = errors.New("storage: backend closed")
)

type AnimalType string

const (
	AnimalTypeCalf           AnimalType = "CALF"
	AnimalTypeYearling       AnimalType = "YEARLING"
	AnimalTypeBreedingFemale AnimalType = "BREEDING_FEMALE"
	AnimalTypeFeedlot        AnimalType = "FEEDLOT"
)

func (t AnimalType) Valid() bool {
	switch t {
	case AnimalTypeCalf, AnimalTypeYearling, AnimalTypeBreedingFemale, AnimalTypeFeedlot:
		return true
	}
	return false
}

type Sex string

const (
	SexMale   Sex = "MALE"
	SexFemale Sex = "FEMALE"
)

func (s Sex) Valid() bool {
	return s == SexMale || s == SexFemale
}

// Animal is a single herd record. Empty strings and nil pointers mean the
// optional attribute is absent. Dates carry only a calendar day and are kept
// at UTC midnight.
type Animal struct {
	ID   string
	Tag  string
	Type AnimalType
	Sex  Sex

	Breed       string
	Origin      string
	Lot         string
	Pasture     string
	Supplier    string
	Buyer       string
	SireTag     string
	DamTag      string
	CauseMortis string
	Notes       string

	PurchaseDate         *time.Time
	BirthDate            *time.Time
	WeaningDate          *time.Time
	SaleDate             *time.Time
	PastureStartDate     *time.Time
	ConfinementStartDate *time.Time

	WeightKg   *float64
	PriceValue *float64

	UpdatedAt time.Time
	Version   int64
}

type BackendKind string

const (
	BackendAuto   BackendKind = "auto"
	BackendSQLite BackendKind = "sqlite"
	BackendBlob   BackendKind = "blob"
)

// Precondition guards a write. When Enforce is set the stored version of the
// record must equal ExpectedVersion, where 0 means the record must not exist.
type Precondition struct {
	Enforce         bool
	ExpectedVersion int64
}

// Backend is the physical store behind an AnimalRepository.
type Backend interface {
	Kind() BackendKind
	List(ctx context.Context) ([]Animal, error)
	Get(ctx context.Context, id string) (Animal, bool, error)
	Put(ctx context.Context, animal Animal, pre Precondition) error
	Close() error
}
