// Package pricing computes the priced breakdown for a registration's
// option selection. The catalog is immutable and injected at startup so
// historical totals stay stable across price changes.
package pricing

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// Option categories used in breakdown line items.
const (
	CategoryCampType      = "campType"
	CategoryMealPlan      = "mealPlan"
	CategoryAccommodation = "accommodation"
)

// Camp type codes.
const (
	CampIaido = "iaido"
	CampJodo  = "jodo"
	CampBoth  = "both"
)

// Meal plan codes.
const (
	MealNone  = "none"
	MealLunch = "lunch"
	MealFull  = "full"
)

// Accommodation codes.
const (
	AccommodationNone   = "none"
	AccommodationShared = "shared"
	AccommodationSingle = "single"
)

// Option is one selectable priced entry within a category.
type Option struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	AmountCents int64  `json:"amountCents"`
}

// LineItem is one resolved entry of a priced breakdown.
type LineItem struct {
	Category    string `json:"category"`
	Code        string `json:"code"`
	Label       string `json:"label"`
	AmountCents int64  `json:"amountCents"`
}

// Breakdown is the full priced result for one option selection.
type Breakdown struct {
	Items      []LineItem `json:"items"`
	TotalCents int64      `json:"totalCents"`
	Currency   string     `json:"currency"`
}

// Catalog is the immutable price table for one deployment.
type Catalog struct {
	Currency       string   `json:"currency"`
	CampTypes      []Option `json:"campTypes"`
	MealPlans      []Option `json:"mealPlans"`
	Accommodations []Option `json:"accommodations"`
}

// DefaultCatalog returns the seasonal camp price table.
func DefaultCatalog() Catalog {
	return Catalog{
		Currency: "EUR",
		CampTypes: []Option{
			{Code: CampIaido, Label: "Iaido seminar", AmountCents: 15000},
			{Code: CampJodo, Label: "Jodo seminar", AmountCents: 15000},
			{Code: CampBoth, Label: "Iaido and jodo seminar", AmountCents: 24000},
		},
		MealPlans: []Option{
			{Code: MealNone, Label: "No meals", AmountCents: 0},
			{Code: MealLunch, Label: "Lunch only", AmountCents: 4500},
			{Code: MealFull, Label: "Full board", AmountCents: 9500},
		},
		Accommodations: []Option{
			{Code: AccommodationNone, Label: "No accommodation", AmountCents: 0},
			{Code: AccommodationShared, Label: "Shared dormitory", AmountCents: 8000},
			{Code: AccommodationSingle, Label: "Single room", AmountCents: 14000},
		},
	}
}

// Validate checks the catalog is usable: a recognised ISO currency and a
// default option per category.
func (c Catalog) Validate() error {
	if _, err := currency.ParseISO(c.Currency); err != nil {
		return fmt.Errorf("parse catalog currency %q: %w", c.Currency, err)
	}
	if _, ok := findOption(c.CampTypes, CampIaido); !ok {
		return fmt.Errorf("catalog is missing default camp type %q", CampIaido)
	}
	if _, ok := findOption(c.MealPlans, MealNone); !ok {
		return fmt.Errorf("catalog is missing default meal plan %q", MealNone)
	}
	if _, ok := findOption(c.Accommodations, AccommodationNone); !ok {
		return fmt.Errorf("catalog is missing default accommodation %q", AccommodationNone)
	}
	return nil
}

// ResolveCampType coerces an arbitrary camp type value to a catalog option,
// falling back to the iaido seminar for unknown or empty values.
func (c Catalog) ResolveCampType(code string) Option {
	return resolve(c.CampTypes, code, CampIaido)
}

// ResolveMealPlan coerces an arbitrary meal plan value to a catalog option,
// falling back to no meals.
func (c Catalog) ResolveMealPlan(code string) Option {
	return resolve(c.MealPlans, code, MealNone)
}

// ResolveAccommodation coerces an arbitrary accommodation value to a catalog
// option, falling back to no accommodation.
func (c Catalog) ResolveAccommodation(code string) Option {
	return resolve(c.Accommodations, code, AccommodationNone)
}

// Quote prices one option selection. It is pure: unknown codes fall back to
// the documented per-category default instead of failing, and the total is
// always the sum of the three line items.
func (c Catalog) Quote(campType, mealPlan, accommodation string) Breakdown {
	camp := c.ResolveCampType(campType)
	meal := c.ResolveMealPlan(mealPlan)
	lodging := c.ResolveAccommodation(accommodation)

	items := []LineItem{
		{Category: CategoryCampType, Code: camp.Code, Label: camp.Label, AmountCents: camp.AmountCents},
		{Category: CategoryMealPlan, Code: meal.Code, Label: meal.Label, AmountCents: meal.AmountCents},
		{Category: CategoryAccommodation, Code: lodging.Code, Label: lodging.Label, AmountCents: lodging.AmountCents},
	}

	var total int64
	for _, item := range items {
		total += item.AmountCents
	}

	return Breakdown{Items: items, TotalCents: total, Currency: c.Currency}
}

func resolve(options []Option, code, fallback string) Option {
	code = strings.TrimSpace(code)
	if option, ok := findOption(options, code); ok {
		return option
	}
	option, _ := findOption(options, fallback)
	return option
}

func findOption(options []Option, code string) (Option, bool) {
	for _, option := range options {
		if option.Code == code {
			return option, true
		}
	}
	return Option{}, false
}
