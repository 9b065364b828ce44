package utils

import (
	"encoding/csv"
	"os"
	"strconv"

	"tradeEngine/internal/domain"
)

// WriteTicksToCSV exports recorded ticks for offline analysis.
func WriteTicksToCSV(ticks []domain.Tick, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"date", "time", "instrument", "last_price", "last_volume", "volume", "bid_price_1", "bid_volume_1", "ask_price_1", "ask_volume_1"})

	for i := range ticks {
		t := &ticks[i]
		writer.Write([]string{
			t.Date,
			t.Time,
			t.Instrument,
			strconv.FormatFloat(t.LastPrice, 'f', -1, 64),
			strconv.FormatFloat(t.LastVolume, 'f', -1, 64),
			strconv.FormatFloat(t.Volume, 'f', -1, 64),
			strconv.FormatFloat(t.BidPrice[0], 'f', -1, 64),
			strconv.FormatFloat(t.BidVolume[0], 'f', -1, 64),
			strconv.FormatFloat(t.AskPrice[0], 'f', -1, 64),
			strconv.FormatFloat(t.AskVolume[0], 'f', -1, 64),
		})
	}
	return writer.Error()
}
