package engine

import (
	"healthatlas/internal/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// Summary reports the year range and total of a category, as shown above
// the map.
func (s *JoinStore) Summary(category models.Category) (models.Summary, bool) {
	set, ok := s.sets[category]
	if !ok {
		return models.Summary{}, false
	}
	lo, hi, _ := s.YearRange(category)
	total := s.Sum(category)
	return models.Summary{
		Category:       category,
		MinYear:        lo,
		MaxYear:        hi,
		Total:          total,
		TotalFormatted: printer.Sprint(number.Decimal(total, number.MaxFractionDigits(2))),
		Records:        set.data.Len(),
		Countries:      len(set.data.countryDict),
	}, true
}

// MapValues returns the per-country mean across years, sorted by country
// code. Countries without records are left out so the map can grey them.
func (s *JoinStore) MapValues(category models.Category) []models.MapValue {
	countries := s.Countries(category)
	out := make([]models.MapValue, 0, len(countries))
	for _, c := range countries {
		mean, ok := s.MeanAcrossYears(category, c)
		if !ok {
			continue
		}
		out = append(out, models.MapValue{
			Country: c,
			Mean:    mean,
			Years:   len(s.YearsFor(category, c)),
		})
	}
	return out
}

// Compare lines up two countries of one category on a shared year axis.
// A year one country lacks is omitted from its series, never filled in.
func (s *JoinStore) Compare(category models.Category, countryA, countryB string) models.Comparison {
	cmp := models.Comparison{
		Category: category,
		Years:    s.UnionYears(category, countryA, category, countryB),
		A:        s.series(category, countryA),
		B:        s.series(category, countryB),
	}
	for _, sr := range []models.Series{cmp.A, cmp.B} {
		for _, p := range sr.Points {
			cmp.MaxValue = max(cmp.MaxValue, p.Value)
		}
	}
	return cmp
}

func (s *JoinStore) series(category models.Category, country string) models.Series {
	years := s.YearsFor(category, country)
	sr := models.Series{Country: normalizeCode(country), Points: make([]models.Point, 0, len(years))}
	for _, y := range years {
		if v, ok := s.ValueAt(category, country, y); ok {
			sr.Points = append(sr.Points, models.Point{Year: y, Value: v})
		}
	}
	return sr
}

// Breakdown collects the doctors and nurses values of one country at one
// year, plus the years either category covers for the year selector.
func (s *JoinStore) Breakdown(country string, year int) models.Breakdown {
	b := models.Breakdown{
		Country: normalizeCode(country),
		Year:    year,
		Years:   s.UnionYears(models.Doctors, country, models.Nurses, country),
		Doctors: s.ValuesAt(models.Doctors, country, year),
		Nurses:  s.ValuesAt(models.Nurses, country, year),
	}
	if b.Doctors == nil {
		b.Doctors = []float64{}
	}
	if b.Nurses == nil {
		b.Nurses = []float64{}
	}
	return b
}

// DeathRateComparison puts a country's death rate next to its total
// healthcare workforce for one year. The rate is rescaled from the death
// rate maximum onto the workforce maximum so both fit one axis. It reports
// false when either value is missing, and a DomainError when a maximum is
// zero.
func (s *JoinStore) DeathRateComparison(country string, year int) (models.DeathRateComparison, bool, error) {
	rate, ok := s.ValueAt(models.DeathRate, country, year)
	if !ok {
		return models.DeathRateComparison{}, false, nil
	}
	workforce, ok := s.ValueAt(models.Workforce, country, year)
	if !ok {
		return models.DeathRateComparison{}, false, nil
	}

	_, maxRate := s.Extent(models.DeathRate)
	_, maxWorkforce := s.Extent(models.Workforce)
	normalized, err := NormalizeAcrossScales(rate, maxRate, maxWorkforce)
	if err != nil {
		return models.DeathRateComparison{}, false, err
	}

	return models.DeathRateComparison{
		Country:   normalizeCode(country),
		Year:      year,
		RawRate:   rate,
		Workforce: workforce,
		Points: []models.LabeledValue{
			{Label: "Death Rate", Value: normalized},
			{Label: "Total Healthcare Workforce", Value: workforce},
		},
	}, true, nil
}
