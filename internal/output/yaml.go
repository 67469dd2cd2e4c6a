package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/carmat/pkg/record"
)

// writeYAML writes records as a YAML sequence. Dates are rendered as their
// ISO strings so JSON and YAML exports carry the same values.
func writeYAML(w io.Writer, records []record.Record) error {
	items := make([]map[string]any, 0, len(records))
	for _, r := range records {
		item := make(map[string]any, len(r))
		for k, v := range r {
			if v == nil {
				item[k] = nil
				continue
			}
			item[k] = record.Stringify(v)
		}
		items = append(items, item)
	}

	bw := bufio.NewWriter(w)
	encoder := yaml.NewEncoder(bw)
	encoder.SetIndent(2)
	if err := encoder.Encode(items); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	return bw.Flush()
}
