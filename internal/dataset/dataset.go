// Package dataset holds the normalized transaction table and its read-only
// views. Tables are small (one region-month or one uploaded file), so views
// are recomputed per call rather than maintained incrementally.
package dataset

import (
	"sort"
	"time"
)

// PyeongSqm is the floor area of one pyeong in square meters
const PyeongSqm = 3.3058

// UnknownDistrict is the sentinel for addresses without a recognizable
// district token. It is a valid, filterable category, not an error.
const UnknownDistrict = "미상"

// Deal is one normalized transaction record
type Deal struct {
	RawAddress   string    `json:"raw_address"`
	District     string    `json:"district"`
	Neighborhood string    `json:"neighborhood"`
	ComplexName  string    `json:"complex_name"`
	AreaSqm      float64   `json:"floor_area_sqm"`
	Date         time.Time `json:"contract_date"`
	Price        int64     `json:"price"`      // 만원
	UnitPrice    float64   `json:"unit_price"` // 만원 per pyeong
	Floor        int       `json:"floor,omitempty"`
	HasFloor     bool      `json:"-"`
}

// Pyeong returns the floor area in the traditional unit
func (d Deal) Pyeong() float64 {
	return d.AreaSqm / PyeongSqm
}

// Table is an immutable normalized transaction table
type Table struct {
	deals []Deal
}

// NewTable creates a table over the given deals
func NewTable(deals []Deal) *Table {
	return &Table{deals: deals}
}

// Len returns the number of deals in the table
func (t *Table) Len() int {
	return len(t.deals)
}

// Deals returns all deals; callers must not mutate the slice
func (t *Table) Deals() []Deal {
	return t.deals
}

// Cohort returns the deals matching a (neighborhood, complex, area) triple,
// ordered by contract date ascending. This is the view the forecaster runs
// on.
func (t *Table) Cohort(neighborhood, complexName string, areaSqm float64) []Deal {
	var cohort []Deal
	for _, d := range t.deals {
		if d.Neighborhood == neighborhood && d.ComplexName == complexName && d.AreaSqm == areaSqm {
			cohort = append(cohort, d)
		}
	}
	sort.Slice(cohort, func(i, j int) bool {
		return cohort[i].Date.Before(cohort[j].Date)
	})
	return cohort
}

// MonthlyUnitPrice is one (month, district) bucket of the market overview
type MonthlyUnitPrice struct {
	Month     time.Time `json:"month"`
	District  string    `json:"district"`
	UnitPrice float64   `json:"unit_price"`
	Deals     int       `json:"deals"`
}

// DistrictMonthly groups deals by calendar month and district and averages
// the unit price, ordered by month then district.
func (t *Table) DistrictMonthly() []MonthlyUnitPrice {
	type key struct {
		month    time.Time
		district string
	}
	sums := make(map[key]float64)
	counts := make(map[key]int)
	for _, d := range t.deals {
		k := key{
			month:    time.Date(d.Date.Year(), d.Date.Month(), 1, 0, 0, 0, 0, time.UTC),
			district: d.District,
		}
		sums[k] += d.UnitPrice
		counts[k]++
	}

	buckets := make([]MonthlyUnitPrice, 0, len(sums))
	for k, sum := range sums {
		buckets = append(buckets, MonthlyUnitPrice{
			Month:     k.month,
			District:  k.district,
			UnitPrice: sum / float64(counts[k]),
			Deals:     counts[k],
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if !buckets[i].Month.Equal(buckets[j].Month) {
			return buckets[i].Month.Before(buckets[j].Month)
		}
		return buckets[i].District < buckets[j].District
	})
	return buckets
}

// Districts returns the distinct districts, sorted
func (t *Table) Districts() []string {
	return t.distinct(func(d Deal) (string, bool) {
		return d.District, true
	})
}

// Neighborhoods returns the distinct neighborhoods within a district, sorted
func (t *Table) Neighborhoods(district string) []string {
	return t.distinct(func(d Deal) (string, bool) {
		return d.Neighborhood, d.District == district
	})
}

// Complexes returns the distinct complex names within a neighborhood, sorted
func (t *Table) Complexes(district, neighborhood string) []string {
	return t.distinct(func(d Deal) (string, bool) {
		return d.ComplexName, d.District == district && d.Neighborhood == neighborhood
	})
}

// Areas returns the distinct floor areas for a complex, sorted ascending
func (t *Table) Areas(district, neighborhood, complexName string) []float64 {
	seen := make(map[float64]bool)
	var areas []float64
	for _, d := range t.deals {
		if d.District != district || d.Neighborhood != neighborhood || d.ComplexName != complexName {
			continue
		}
		if !seen[d.AreaSqm] {
			seen[d.AreaSqm] = true
			areas = append(areas, d.AreaSqm)
		}
	}
	sort.Float64s(areas)
	return areas
}

func (t *Table) distinct(pick func(Deal) (string, bool)) []string {
	seen := make(map[string]bool)
	var values []string
	for _, d := range t.deals {
		v, ok := pick(d)
		if !ok || v == "" {
			continue
		}
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return values
}
