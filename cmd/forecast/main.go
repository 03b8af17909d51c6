// Command forecast runs the pipeline once from the command line: load a
// ministry export, pick a cohort, fit the trend and optionally render the
// chart to a PNG.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"aptcast/internal/chart"
	"aptcast/internal/forecast"
	"aptcast/internal/ingest"
	"aptcast/internal/normalize"
)

func main() {
	var (
		filePath     = flag.String("file", "", "path to a ministry CSV or XLSX export")
		skipRows     = flag.Int("skip", 15, "preamble rows to skip before the header")
		encoding     = flag.String("encoding", "cp949", "file encoding (cp949 or utf8)")
		neighborhood = flag.String("neighborhood", "", "neighborhood of the cohort")
		complexName  = flag.String("complex", "", "apartment complex name")
		areaSqm      = flag.Float64("area", 0, "exclusive floor area in square meters")
		outPath      = flag.String("out", "", "write the cohort chart to this PNG path")
		listCohorts  = flag.Bool("list", false, "list districts and row counts, then exit")
	)
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: forecast -file <export> -neighborhood <동> -complex <단지> -area <㎡> [-out chart.png]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*filePath, *skipRows, *encoding, *neighborhood, *complexName, *areaSqm, *outPath, *listCohorts); err != nil {
		fmt.Fprintf(os.Stderr, "forecast: %v\n", err)
		os.Exit(1)
	}
}

func run(filePath string, skipRows int, encoding, neighborhood, complexName string, areaSqm float64, outPath string, listCohorts bool) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	opts := ingest.FileOptions{SkipRows: skipRows, Encoding: ingest.Encoding(encoding)}
	var raws []ingest.RawDeal
	if strings.HasSuffix(strings.ToLower(filePath), ".xlsx") {
		raws, err = ingest.LoadXLSX(bytes.NewReader(data), opts)
	} else {
		raws, err = ingest.LoadCSV(bytes.NewReader(data), opts)
	}
	if err != nil {
		var loadErr *ingest.LoadError
		if errors.As(err, &loadErr) && loadErr.Hint != "" {
			return fmt.Errorf("%s (%s)", loadErr.Message, loadErr.Hint)
		}
		return err
	}

	table, err := normalize.Normalize(raws)
	if err != nil {
		return err
	}

	if listCohorts {
		fmt.Printf("%d transactions loaded\n", table.Len())
		for _, district := range table.Districts() {
			fmt.Printf("  %s: %s\n", district, strings.Join(table.Neighborhoods(district), ", "))
		}
		return nil
	}

	if neighborhood == "" || complexName == "" || areaSqm <= 0 {
		return fmt.Errorf("neighborhood, complex and area are required to pick a cohort")
	}

	cohort := table.Cohort(neighborhood, complexName, areaSqm)
	if len(cohort) == 0 {
		return fmt.Errorf("no transactions match %s %s %.2f㎡", neighborhood, complexName, areaSqm)
	}

	result, err := forecast.Run(cohort, forecast.Config{})
	if err != nil {
		if errors.Is(err, forecast.ErrTooFewDeals) {
			fmt.Printf("%d transactions found; too few to fit a trend, showing history only\n", len(cohort))
			for _, d := range cohort {
				fmt.Printf("  %s  %s\n", d.Date.Format("2006-01-02"), forecast.FormatAmount(d.Price))
			}
			return nil
		}
		return err
	}

	fmt.Printf("cohort: %s %s %.2f㎡ (%d transactions)\n", neighborhood, complexName, areaSqm, len(cohort))
	fmt.Printf("last observed: %s at %s\n",
		result.LastObserved.Date.Format("2006-01-02"), forecast.FormatAmount(result.LastObserved.Price))
	for _, pt := range result.Points {
		fmt.Printf("  %s  %s\n", pt.Date.Format("2006-01-02"), forecast.FormatAmount(pt.Price))
	}
	fmt.Println(result.Summary)
	fmt.Println(result.Disclaimer)

	if outPath != "" {
		title := fmt.Sprintf("%s %s %.0f㎡", neighborhood, complexName, areaSqm)
		png, err := chart.Render(cohort, result.Points, title)
		if err != nil {
			return fmt.Errorf("failed to render chart: %w", err)
		}
		if err := os.WriteFile(outPath, png, 0o644); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
		fmt.Printf("chart written to %s\n", outPath)
	}
	return nil
}
