package simulations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

// ReadPricesCSV parses a "timestamp,price" CSV. Timestamps are RFC3339 or unix seconds; a
// header row is skipped when its price column is not numeric.
func ReadPricesCSV(r io.Reader) ([]types.PriceData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var prices []types.PriceData
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read price csv: %w", err)
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid price %q: %w", line, record[1], err)
		}
		ts, err := parseTimestamp(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		prices = append(prices, types.PriceData{Timestamp: ts, Price: price})
	}
	return prices, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
	}
	return ts.UTC(), nil
}
