// Command aqreport is an offline fill/markout report tool: it reads the
// same sqlite database cmd/quoter writes to and prints a per-asset
// summary, optionally exporting a per-fill CSV. It replaces the
// reference distillation's tools/aq_log_analyzer.py, which parsed the
// same information out of text log lines; here it comes straight from
// internal/store's structured tables instead.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/betbot/aquoter/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	storePath := flag.String("store", "./data/aquoter.db", "path to the quoter's sqlite database")
	asset := flag.String("asset", "", "filter to a single asset id (default: all)")
	csvPath := flag.String("csv", "", "optional path to write a per-fill CSV")
	flag.Parse()

	st, err := store.Open(*storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aqreport: open store: %v\n", err)
		return 1
	}
	defer st.Close()

	ctx := context.Background()

	summaries, err := st.MarkoutSummaryByAsset(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aqreport: markout summary: %v\n", err)
		return 1
	}

	totalFills := 0
	for _, s := range summaries {
		if *asset != "" && s.AssetID != *asset {
			continue
		}
		totalFills += s.FillCount
	}

	fmt.Println("============================================================")
	fmt.Printf("Analyzed fills: %d\n", totalFills)
	fmt.Printf("Assets: %d\n", len(summaries))
	fmt.Println("============================================================")
	for _, s := range summaries {
		if *asset != "" && s.AssetID != *asset {
			continue
		}
		fmt.Printf("%s | fills=%d avg_markout_5s_bps=%+.1f\n", s.AssetID, s.FillCount, s.MeanMarkout5s)
	}
	fmt.Println("============================================================")

	if *csvPath == "" {
		return 0
	}

	rows, err := st.FillMarkoutRows(ctx, *asset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aqreport: fill rows: %v\n", err)
		return 1
	}
	if err := writeCSV(*csvPath, rows); err != nil {
		fmt.Fprintf(os.Stderr, "aqreport: write csv: %v\n", err)
		return 1
	}
	return 0
}

func writeCSV(path string, rows []store.FillMarkoutRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"fill_id", "asset_id", "side", "price", "size", "fee", "mid_at_fill", "ts",
		"markout_1s_bps", "markout_5s_bps", "markout_15s_bps", "markout_30s_bps", "markout_60s_bps",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.FillID, r.AssetID, r.Side, r.Price, r.Size, r.Fee, r.MidAtFill, r.Timestamp,
			floatOrEmpty(r.Markout1s), floatOrEmpty(r.Markout5s), floatOrEmpty(r.Markout15s),
			floatOrEmpty(r.Markout30s), floatOrEmpty(r.Markout60s),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}
