package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/backing"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/readthrough"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

// runLookup writes one json line per id describing the lookup outcome.
// json records are embedded as is, anything else as a string.
func runLookup(ctx context.Context, out io.Writer, cache *readthrough.Cache, ids []string) error {
	for _, id := range ids {
		line, _ := sjson.Set("", "id", id)
		res, err := cache.Lookup(ctx, id)
		if err != nil {
			line, _ = sjson.Set(line, "outcome", describeErr(err))
			line, _ = sjson.Set(line, "error", err.Error())
		} else {
			line, _ = sjson.Set(line, "outcome", res.Outcome.String())
			if res.Found() {
				line, _ = sjson.Set(line, "source", res.Source.String())
				if json.Valid(res.Value) {
					line, _ = sjson.SetRaw(line, "value", string(res.Value))
				} else {
					line, _ = sjson.Set(line, "value", string(res.Value))
				}
			}
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <id>...",
	Short: "Read records through the filter and cache",
	Long: `Looks each id up the same way an embedding service would: the filter is
consulted first, then the redis cache, then the configured backing store.
Records fetched from the backing store are written back to the cache.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		kv, err := kvprovider.NewRedisProvider()
		exitOnErr("Error creating redis client", err)
		defer kv.Close()
		records, err := backing.NewFromSettings(ctx)
		exitOnErr("Error opening backing store", err)
		cache, err := openCache(ctx, kv, filterName, records, nil)
		exitOnErr("Error creating cache", err)
		err = runLookup(ctx, os.Stdout, cache, args)
		exitOnErr("Error performing lookup", err)
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
