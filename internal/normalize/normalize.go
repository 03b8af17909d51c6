// Package normalize derives the typed transaction fields from raw rows:
// district and neighborhood labels out of the free-text address, integer
// prices out of thousands-separated strings, calendar dates out of the
// year-month/day pair, and the per-pyeong unit price.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"time"

	"aptcast/internal/dataset"
	"aptcast/internal/ingest"
)

// Address token suffixes. Source addresses have inconsistent spacing, so
// matching on the last rune of each token is more reliable than splitting by
// position. 시 is deliberately not a district suffix: the leading
// metropolitan-city token (울산광역시) must never win the scan.
var (
	districtSuffixes     = []rune{'구', '군'}
	neighborhoodSuffixes = []rune{'동', '읍', '면', '리', '가'}
)

// District returns the first whitespace-separated token of addr ending in a
// district-level suffix, or the unknown sentinel. Never fails.
func District(addr string) string {
	if token := firstTokenWithSuffix(addr, districtSuffixes); token != "" {
		return token
	}
	return dataset.UnknownDistrict
}

// Neighborhood returns the first token of addr ending in a
// neighborhood-level suffix, or the empty string.
func Neighborhood(addr string) string {
	return firstTokenWithSuffix(addr, neighborhoodSuffixes)
}

func firstTokenWithSuffix(addr string, suffixes []rune) string {
	for _, token := range strings.Fields(addr) {
		runes := []rune(token)
		if len(runes) < 2 {
			continue
		}
		last := runes[len(runes)-1]
		for _, s := range suffixes {
			if last == s {
				return token
			}
		}
	}
	return ""
}

// ParsePrice converts a thousands-separated 만원 amount to an integer
func ParsePrice(raw string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	price, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a numeric amount: %q", raw)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative amount: %q", raw)
	}
	return price, nil
}

// ContractDate combines a YYYYMM year-month and a 1-2 digit day into a
// calendar date.
func ContractDate(yearMonth, day string) (time.Time, error) {
	ym := strings.TrimSpace(yearMonth)
	d := strings.TrimSpace(day)
	if len(ym) != 6 {
		return time.Time{}, fmt.Errorf("year-month %q is not YYYYMM", yearMonth)
	}
	if len(d) == 1 {
		d = "0" + d
	}
	date, err := time.Parse("20060102", ym+d)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q + %q is not a calendar date", yearMonth, day)
	}
	return date, nil
}

// Normalize converts raw rows into a normalized table. Any row whose price,
// area or date cannot be parsed fails the whole load with a value error
// naming the row and field; rows are never silently skipped.
func Normalize(raws []ingest.RawDeal) (*dataset.Table, error) {
	deals := make([]dataset.Deal, 0, len(raws))
	for i, raw := range raws {
		row := i + 1

		price, err := ParsePrice(raw.PriceRaw)
		if err != nil {
			return nil, ingest.ValueError(row, ingest.ColPrice, err.Error())
		}

		area, err := strconv.ParseFloat(strings.TrimSpace(raw.AreaSqm), 64)
		if err != nil {
			return nil, ingest.ValueError(row, ingest.ColArea, fmt.Sprintf("not a numeric area: %q", raw.AreaSqm))
		}
		if area <= 0 {
			return nil, ingest.ValueError(row, ingest.ColArea, fmt.Sprintf("area must be positive: %q", raw.AreaSqm))
		}

		date, err := ContractDate(raw.ContractYM, raw.ContractDay)
		if err != nil {
			return nil, ingest.ValueError(row, ingest.ColYM, err.Error())
		}

		deal := dataset.Deal{
			RawAddress:   raw.RawAddress,
			District:     District(raw.RawAddress),
			Neighborhood: Neighborhood(raw.RawAddress),
			ComplexName:  raw.ComplexName,
			AreaSqm:      area,
			Date:         date,
			Price:        price,
			UnitPrice:    float64(price) / (area / dataset.PyeongSqm),
		}

		if raw.Floor != "" {
			if floor, err := strconv.Atoi(strings.TrimSpace(raw.Floor)); err == nil {
				deal.Floor = floor
				deal.HasFloor = true
			}
		}

		deals = append(deals, deal)
	}

	return dataset.NewTable(deals), nil
}
