/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
)

// definitionsCmd represents the definitions command
var definitionsCmd = &cobra.Command{
	Use:     "definitions [name]",
	Aliases: []string{"defs"},
	Short:   "List the loaded file definitions",
	Long: `List every definition loaded from the XFD directory, or show the
full layout of one file.

Examples:
  visionfs definitions
  visionfs definitions orders --format yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}
		fs, err := container.FileSystem()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			return outputDefinitions(cmd.OutOrStdout(), format, fs.Definitions())
		}
		def, err := fs.Definition(args[0])
		if err != nil {
			return err
		}
		if format == formatTable {
			format = formatYAML
		}
		return outputStructured(cmd.OutOrStdout(), format, def)
	},
}

func init() {
	rootCmd.AddCommand(definitionsCmd)
	definitionsCmd.Flags().StringP("format", "f", formatTable, "Output format (table, json, yaml)")
}
