package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type TransferCSV struct {
	FromStopID      string `csv:"from_stop_id"`
	ToStopID        string `csv:"to_stop_id"`
	TransferType    int8   `csv:"transfer_type"`
	MinTransferTime int    `csv:"min_transfer_time"`
}

func ParseTransfers(writer storage.FeedWriter, data io.Reader) error {
	configureCSV()

	transferCsv := []*TransferCSV{}
	if err := gocsv.Unmarshal(data, &transferCsv); err != nil {
		return fmt.Errorf("unmarshaling transfers csv: %w", err)
	}

	for _, t := range transferCsv {
		err := writer.WriteTransfer(&model.Transfer{
			FromStopID:      t.FromStopID,
			ToStopID:        t.ToStopID,
			TransferType:    t.TransferType,
			MinTransferTime: t.MinTransferTime,
		})
		if err != nil {
			return fmt.Errorf("writing transfer: %w", err)
		}
	}

	return nil
}
