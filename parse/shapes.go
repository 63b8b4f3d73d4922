package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type ShapeCSV struct {
	ID           string  `csv:"shape_id"`
	Lat          float64 `csv:"shape_pt_lat"`
	Lon          float64 `csv:"shape_pt_lon"`
	Sequence     uint32  `csv:"shape_pt_sequence"`
	DistTraveled float64 `csv:"shape_dist_traveled"`
}

func ParseShapes(writer storage.FeedWriter, data io.Reader) error {
	configureCSV()

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(s *ShapeCSV) error {
		i += 1
		if s.ID == "" {
			return fmt.Errorf("missing shape_id (row %d)", i+1)
		}

		err := writer.WriteShape(&model.Shape{
			ID:           s.ID,
			Lat:          s.Lat,
			Lon:          s.Lon,
			Sequence:     s.Sequence,
			DistTraveled: s.DistTraveled,
		})
		if err != nil {
			return errors.Wrapf(err, "writing shape (row %d)", i+1)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "unmarshaling shapes csv")
	}

	return nil
}
