package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// Writes v as indented JSON when --format json is set. Otherwise
// text is called with a tab aligned writer.
func output(v interface{}, text func(w io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		text(w)
		return w.Flush()
	}
	return fmt.Errorf("unknown format '%s'", format)
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
