/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/record"
	"github.com/ssargent/visionfs/pkg/vision"
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <name>",
	Short: "Print the records of a file in key order",
	Long: `Print records of a file in the order of one of its keys. Reading
starts at the key built from --start, or at the first (last, for lt and
le) record when no start is given.

Examples:
  visionfs dump orders
  visionfs dump orders --key 1 --start ORD-CUSTOMER=ACME --limit 10
  visionfs dump orders --mode le --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}
		opts, err := scanFlags(cmd)
		if err != nil {
			return err
		}
		fs, err := container.FileSystem()
		if err != nil {
			return err
		}
		return dumpFile(cmd.OutOrStdout(), fs, args[0], opts, format)
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().IntP("key", "k", 0, "Key to read along")
	dumpCmd.Flags().StringP("mode", "m", engine.GreaterOrEqual.String(), "Start mode (eq, gt, ge, lt, le)")
	dumpCmd.Flags().StringArrayP("start", "s", nil, "FIELD=VALUE of the start key (repeatable)")
	dumpCmd.Flags().IntP("limit", "n", 0, "Maximum records to print (0 for all)")
	dumpCmd.Flags().StringP("format", "f", formatTable, "Output format (table, json, yaml)")
}

func scanFlags(cmd *cobra.Command) (scanOptions, error) {
	keyIndex, _ := cmd.Flags().GetInt("key")
	modeName, _ := cmd.Flags().GetString("mode")
	starts, _ := cmd.Flags().GetStringArray("start")
	limit, _ := cmd.Flags().GetInt("limit")

	mode, ok := engine.ParseStartMode(modeName)
	if !ok {
		return scanOptions{}, errors.Newf("unknown start mode %q", modeName)
	}
	if limit < 0 {
		return scanOptions{}, errors.New("limit must not be negative")
	}
	return scanOptions{keyIndex: keyIndex, mode: mode, starts: starts, limit: limit}, nil
}

func dumpFile(w io.Writer, fs *vision.FileSystem, name string, opts scanOptions, format string) error {
	f, err := openFile(fs, name, engine.Input)
	if err != nil {
		return err
	}
	defer f.Dispose()

	var records []*record.Record
	if _, err := scan(f, opts, func(rec *record.Record) error {
		records = append(records, rec)
		return nil
	}); err != nil {
		return err
	}
	return outputRecords(w, format, records)
}
