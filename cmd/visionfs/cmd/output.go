package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/visionfs/pkg/layout"
	"github.com/ssargent/visionfs/pkg/record"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return errors.Newf("unknown output format %q (table, json or yaml)", format)
}

// outputStructured writes v as indented JSON or YAML
func outputStructured(w io.Writer, format string, v any) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode yaml")
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "failed to encode json")
}

// outputDefinitions displays the registered file definitions
func outputDefinitions(w io.Writer, format string, defs []*layout.FileDefinition) error {
	if format != formatTable {
		return outputStructured(w, format, defs)
	}
	if len(defs) == 0 {
		fmt.Fprintln(w, "No definitions found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "FILE\tSELECT\tRECORD SIZE\tKEYS\tFIELDS")
	for _, def := range defs {
		size := fmt.Sprintf("%d", def.MaxRecordSize)
		if def.MinRecordSize != def.MaxRecordSize {
			size = fmt.Sprintf("%d-%d", def.MinRecordSize, def.MaxRecordSize)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", def.FileName, def.SelectName, size, def.NumberOfKeys, len(def.Layout()))
	}
	return nil
}

// outputRecords displays records, one row (or document) per record
func outputRecords(w io.Writer, format string, records []*record.Record) error {
	if format != formatTable {
		maps := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			m, err := rec.Map()
			if err != nil {
				return err
			}
			maps = append(maps, m)
		}
		return outputStructured(w, format, maps)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	for i, rec := range records {
		fields, err := rec.Fields()
		if err != nil {
			return err
		}
		cols := make([]string, len(fields))
		if i == 0 {
			for j, fv := range fields {
				cols[j] = fv.Name
			}
			fmt.Fprintln(tw, strings.Join(cols, "\t"))
		}
		for j, fv := range fields {
			cols[j] = fv.Value.String()
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	return nil
}

// outputRecord displays a single record as name/value pairs
func outputRecord(w io.Writer, format string, rec *record.Record) error {
	if format != formatTable {
		m, err := rec.Map()
		if err != nil {
			return err
		}
		return outputStructured(w, format, m)
	}

	fields, err := rec.Fields()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	for _, fv := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", fv.Name, fv.Value)
	}
	return nil
}
