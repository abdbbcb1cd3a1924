package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
)

// Local backend names as they appear in benchmark reports.
const (
	UnitedVolatile    = "Doublets_United_Volatile"
	UnitedNonVolatile = "Doublets_United_NonVolatile"
	SplitVolatile     = "Doublets_Split_Volatile"
	SplitNonVolatile  = "Doublets_Split_NonVolatile"
	BadgerNonVolatile = "Badger_NonVolatile"
)

// Files created under the data directory by the persistent variants.
const (
	UnitedFile     = "united.links"
	SplitDataFile  = "split_data.links"
	SplitIndexFile = "split_index.links"
	BadgerDir      = "badger.links"
)

// Variant describes one local backend configuration.
type Variant struct {
	Name     string
	Volatile bool
	log      logr.Logger
	open     func(dir string, log logr.Logger) (Engine[uint64], error)
}

// WithLogger returns a copy of v whose engine logs to log.
func (v Variant) WithLogger(log logr.Logger) Variant {
	v.log = log
	return v
}

// Open creates the backend, placing any files under dir.
func (v Variant) Open(dir string) (*Local[uint64], error) {
	if !v.Volatile {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	e, err := v.open(dir, v.log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v.Name, err)
	}
	return NewLocal(v.Name, e), nil
}

var variants = []Variant{
	{
		Name:     UnitedVolatile,
		Volatile: true,
		open: func(string, logr.Logger) (Engine[uint64], error) {
			return NewUnitedVolatile[uint64]()
		},
	},
	{
		Name: UnitedNonVolatile,
		open: func(dir string, _ logr.Logger) (Engine[uint64], error) {
			return OpenUnitedFile[uint64](filepath.Join(dir, UnitedFile))
		},
	},
	{
		Name:     SplitVolatile,
		Volatile: true,
		open: func(string, logr.Logger) (Engine[uint64], error) {
			return NewSplitVolatile[uint64]()
		},
	},
	{
		Name: SplitNonVolatile,
		open: func(dir string, _ logr.Logger) (Engine[uint64], error) {
			return OpenSplitFiles[uint64](filepath.Join(dir, SplitDataFile), filepath.Join(dir, SplitIndexFile))
		},
	},
	{
		Name: BadgerNonVolatile,
		open: func(dir string, log logr.Logger) (Engine[uint64], error) {
			return NewBadger[uint64](BadgerOptions{DataDir: filepath.Join(dir, BadgerDir), Logger: BadgerLogger(log)})
		},
	},
}

// Variants lists the local backends in report order.
func Variants() []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	return out
}

// LookupVariant finds a local backend by name.
func LookupVariant(name string) (Variant, bool) {
	for _, v := range variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}
