package cmd

import (
	"os"

	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/spf13/cobra"
)

var filterName string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "azul-bloomcache",
	Short: "Bloom filter gated read-through cache over redis",
	Long: `Bloomcache keeps a bloom filter of known record ids in redis and uses it to
gate a redis hash cache in front of a slower backing store.

Ids the filter has never seen are answered without touching the cache or the
backing store. Everything else is read through the cache, with misses fetched
once from the backing store and written back.

Commands are provided to populate filters, inspect them, and run lookups from
the command line. Settings are read from BC__* environment variables.
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&filterName, "filter", st.PrimaryFilterName, "Name of the filter definition to use")
}
