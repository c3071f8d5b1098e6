/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
)

// makeCmd represents the make command
var makeCmd = &cobra.Command{
	Use:   "make <name>",
	Short: "Create an empty indexed file",
	Long: `Create a new, empty indexed file from its loaded definition. The
file is created in the data directory and must not already exist.

Examples:
  visionfs make orders`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := container.FileSystem()
		if err != nil {
			return err
		}
		f, err := fs.Make(args[0], nil)
		if err != nil {
			return err
		}
		cmd.Printf("✅ Created %s at %s\n", f.Definition().FileName, f.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(makeCmd)
}
