package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SF-Zhou/blkreader"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file>",
	Short: "Print the block device backing a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		device, err := blkreader.ResolveDevice(f)
		if err != nil {
			return err
		}
		fmt.Println(device)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
