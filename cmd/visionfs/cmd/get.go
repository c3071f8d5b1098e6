/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/vision"
)

// ErrRecordNotFound is returned by get when no record has the given key
var ErrRecordNotFound = errors.New("record not found")

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <name> FIELD=VALUE...",
	Short: "Read one record by key",
	Long: `Read the record whose key equals the given field values. The
fields must make up the selected key.

Examples:
  visionfs get orders ORD-YEAR=2024 ORD-NUMBER=12
  visionfs get orders --key 1 ORD-CUSTOMER=ACME --format json`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyIndex, _ := cmd.Flags().GetInt("key")
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}
		fs, err := container.FileSystem()
		if err != nil {
			return err
		}
		return getRecord(cmd.OutOrStdout(), fs, args[0], keyIndex, args[1:], format)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().IntP("key", "k", 0, "Key the fields belong to")
	getCmd.Flags().StringP("format", "f", formatTable, "Output format (table, json, yaml)")
}

func getRecord(w io.Writer, fs *vision.FileSystem, name string, keyIndex int, pairs []string, format string) error {
	f, err := openFile(fs, name, engine.Input)
	if err != nil {
		return err
	}
	defer f.Dispose()

	key := f.NewRecord()
	if err := assign(key, pairs); err != nil {
		return err
	}
	rec, err := f.Read(key, keyIndex)
	if err != nil {
		return err
	}
	if rec == nil {
		return errors.Wrapf(ErrRecordNotFound, "%s", f.Definition().FileName)
	}
	return outputRecord(w, format, rec)
}
