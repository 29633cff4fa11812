package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/SF-Zhou/blkreader"
)

var (
	extentsOffset uint64
	extentsLength uint64
)

var extentsCmd = &cobra.Command{
	Use:   "extents <file>",
	Short: "Print the file's extent map",
	Long: `Print the extents overlapping a byte range of the file, as reported by
the filesystem. Gaps between extents are holes; UNWRITTEN extents are
allocated but were never written through the filesystem.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtents(args[0])
	},
}

func init() {
	rootCmd.AddCommand(extentsCmd)

	extentsCmd.Flags().Uint64VarP(&extentsOffset, "offset", "o", 0, "byte offset of the range")
	extentsCmd.Flags().Uint64VarP(&extentsLength, "length", "l", 0, "length of the range (default: rest of file)")
}

func runExtents(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	length := extentsLength
	if length == 0 {
		fi, err := f.Stat()
		if err != nil {
			return err
		}
		size := uint64(fi.Size())
		if size <= extentsOffset {
			return fmt.Errorf("offset %d is at or past end of file (%d bytes)", extentsOffset, size)
		}
		length = size - extentsOffset
	}

	extents, err := blkreader.QueryExtents(f, extentsOffset, length)
	if err != nil {
		return err
	}
	printExtentTable(os.Stdout, extents)
	return nil
}

func printExtentTable(w io.Writer, extents []blkreader.Extent) {
	fmt.Fprintf(w, "%-6s %-20s %-20s %-20s %s\n", "Index", "Logical", "Physical", "Length", "Flags")
	for i, e := range extents {
		fmt.Fprintf(w, "%-6d 0x%016x   0x%016x   0x%016x   %s\n",
			i, e.Logical, e.Physical, e.Length, e.Flags)
	}
	fmt.Fprintf(w, "Total: %d extent(s)\n", len(extents))
}
