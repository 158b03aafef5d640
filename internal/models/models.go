package models

import (
	"fmt"
	"strings"
)

// Category identifies which indicator a record measures.
type Category string

const (
	Doctors   Category = "Doctors"
	Nurses    Category = "Nurses"
	DeathRate Category = "DeathRate"
	Workforce Category = "Workforce"
	Migration Category = "Migration"
)

// Categories lists every known category in display order.
var Categories = []Category{Doctors, Nurses, DeathRate, Workforce, Migration}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Record is one observation.
type Record struct {
	CountryCode string   `json:"country"`
	Year        int      `json:"year"`
	Value       float64  `json:"value"`
	Category    Category `json:"category"`
}

type Point struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// Series is one country's line. Years without data are simply absent.
type Series struct {
	Country string  `json:"country"`
	Points  []Point `json:"points"`
}

type Comparison struct {
	Category Category `json:"category"`
	Years    []int    `json:"years"`
	A        Series   `json:"a"`
	B        Series   `json:"b"`
	MaxValue float64  `json:"max_value"`
}

type MapValue struct {
	Country string  `json:"country"`
	Mean    float64 `json:"mean"`
	Years   int     `json:"years"`
}

type Summary struct {
	Category       Category `json:"category"`
	MinYear        int      `json:"min_year"`
	MaxYear        int      `json:"max_year"`
	Total          float64  `json:"total"`
	TotalFormatted string   `json:"total_formatted"`
	Records        int      `json:"records"`
	Countries      int      `json:"countries"`
}

type Breakdown struct {
	Country string    `json:"country"`
	Year    int       `json:"year"`
	Years   []int     `json:"years"`
	Doctors []float64 `json:"doctors"`
	Nurses  []float64 `json:"nurses"`
}

type LabeledValue struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type DeathRateComparison struct {
	Country   string         `json:"country"`
	Year      int            `json:"year"`
	RawRate   float64        `json:"raw_death_rate"`
	Workforce float64        `json:"workforce"`
	Points    []LabeledValue `json:"points"`
}

type SourceStatus struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Rows     int      `json:"rows"`
	Retained int      `json:"retained"`
	Dropped  int      `json:"dropped"`
	Error    string   `json:"error,omitempty"`
}

type Selection struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
}
