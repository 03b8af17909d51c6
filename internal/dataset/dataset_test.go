package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleTable() *Table {
	return NewTable([]Deal{
		{District: "남구", Neighborhood: "신정동", ComplexName: "대공원한신", AreaSqm: 84.94, Date: day(2024, 3, 10), Price: 39000, UnitPrice: 1500},
		{District: "남구", Neighborhood: "신정동", ComplexName: "대공원한신", AreaSqm: 84.94, Date: day(2024, 1, 5), Price: 38000, UnitPrice: 1470},
		{District: "남구", Neighborhood: "신정동", ComplexName: "대공원한신", AreaSqm: 59.9, Date: day(2024, 2, 1), Price: 29000, UnitPrice: 1600},
		{District: "남구", Neighborhood: "무거동", ComplexName: "삼호주공", AreaSqm: 84.94, Date: day(2024, 1, 20), Price: 25000, UnitPrice: 970},
		{District: "중구", Neighborhood: "태화동", ComplexName: "강변센트럴", AreaSqm: 101.9, Date: day(2024, 1, 15), Price: 45000, UnitPrice: 1450},
	})
}

func TestCohort(t *testing.T) {
	table := sampleTable()

	t.Run("filters on the full triple and sorts by date", func(t *testing.T) {
		cohort := table.Cohort("신정동", "대공원한신", 84.94)
		require.Len(t, cohort, 2)
		assert.Equal(t, day(2024, 1, 5), cohort[0].Date)
		assert.Equal(t, day(2024, 3, 10), cohort[1].Date)
	})

	t.Run("different area is a different cohort", func(t *testing.T) {
		cohort := table.Cohort("신정동", "대공원한신", 59.9)
		require.Len(t, cohort, 1)
		assert.Equal(t, int64(29000), cohort[0].Price)
	})

	t.Run("no match is empty, not an error", func(t *testing.T) {
		assert.Empty(t, table.Cohort("신정동", "없는단지", 84.94))
	})
}

func TestCascadeViews(t *testing.T) {
	table := sampleTable()

	assert.Equal(t, []string{"남구", "중구"}, table.Districts())
	assert.Equal(t, []string{"무거동", "신정동"}, table.Neighborhoods("남구"))
	assert.Equal(t, []string{"대공원한신"}, table.Complexes("남구", "신정동"))
	assert.Equal(t, []float64{59.9, 84.94}, table.Areas("남구", "신정동", "대공원한신"))
	assert.Empty(t, table.Neighborhoods("동구"))
}

func TestDistrictMonthly(t *testing.T) {
	table := sampleTable()
	buckets := table.DistrictMonthly()

	// 2024-01 남구, 2024-01 중구, 2024-02 남구, 2024-03 남구
	require.Len(t, buckets, 4)

	assert.Equal(t, day(2024, 1, 1), buckets[0].Month)
	assert.Equal(t, "남구", buckets[0].District)
	assert.Equal(t, 2, buckets[0].Deals)
	assert.InDelta(t, (1470.0+970.0)/2, buckets[0].UnitPrice, 0.001)

	assert.Equal(t, "중구", buckets[1].District)
	assert.Equal(t, day(2024, 2, 1), buckets[2].Month)
	assert.Equal(t, day(2024, 3, 1), buckets[3].Month)
}

func TestPyeong(t *testing.T) {
	d := Deal{AreaSqm: PyeongSqm * 25}
	assert.InDelta(t, 25.0, d.Pyeong(), 1e-9)
}
