package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "blkreader",
	Short: "Read file data directly from the underlying block device",
	Long: `blkreader recovers the raw byte contents of a file straight from the
block device it lives on, using the file's extent map instead of the
filesystem's idea of what has been written.

This matters after a crash: when storage was preallocated and the write
pattern is known, the data may be intact on disk even though the filesystem
reports the extents as unwritten. Reading the device directly gets it back.

Commands:
  read     Read a byte range of a file via the block device
  extents  Print the file's extent map
  resolve  Print the block device backing a file`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr)
		if verbose || viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute runs the root command and exits non-zero on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// BLKREADER_ALIGNMENT, BLKREADER_CHUNK_SIZE, BLKREADER_VERBOSE override
	// the built-in defaults; flags still win over the environment.
	viper.SetEnvPrefix("blkreader")
	viper.AutomaticEnv()
	viper.SetDefault("alignment", 512)
	viper.SetDefault("chunk_size", 1<<20)
}
