package selection

import (
	"context"
	"errors"
	"strings"

	"healthatlas/internal/models"
)

const (
	KeyCountryCode = "selectedCountryISO"
	KeyCountryName = "selectedCountryName"
)

var ErrInvalid = errors.New("invalid selection")

// Store persists the country picked on the map so the details page can
// pick it up. Values never expire.
type Store interface {
	// Get returns the current selection; false when nothing was stored yet.
	Get(ctx context.Context) (models.Selection, bool, error)

	// Put replaces both values atomically.
	Put(ctx context.Context, sel models.Selection) error

	Close() error
}

// Normalize upper-cases the country code and checks both fields.
func Normalize(sel models.Selection) (models.Selection, error) {
	sel.CountryCode = strings.ToUpper(strings.TrimSpace(sel.CountryCode))
	sel.CountryName = strings.TrimSpace(sel.CountryName)
	if len(sel.CountryCode) != 3 {
		return sel, errors.Join(ErrInvalid, errors.New("country code must have 3 letters"))
	}
	for _, r := range sel.CountryCode {
		if r < 'A' || r > 'Z' {
			return sel, errors.Join(ErrInvalid, errors.New("country code must be alphabetic"))
		}
	}
	if sel.CountryName == "" {
		return sel, errors.Join(ErrInvalid, errors.New("country name is required"))
	}
	return sel, nil
}
