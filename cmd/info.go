package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/bloom"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

var allFilters bool

// filterInfo describes one filter without stamping it.
func filterInfo(ctx context.Context, kv kvprovider.KVInterface, def st.FilterDefinition) (string, error) {
	filter, err := filterFromDefinition(kv, def)
	if err != nil {
		return "", err
	}
	spec := filter.Spec()
	line, _ := sjson.Set("", "name", def.Name)
	line, _ = sjson.Set(line, "key", def.Key)
	line, _ = sjson.Set(line, "partition", def.Partition)
	line, _ = sjson.Set(line, "bit_size", spec.BitSize)
	line, _ = sjson.Set(line, "hash_count", spec.HashCount)
	line, _ = sjson.Set(line, "memory", humanize.IBytes(spec.BitSize/8))

	stamped, err := filter.CheckStamp(ctx)
	switch {
	case errors.Is(err, bloom.ErrSpecMismatch):
		line, _ = sjson.Set(line, "stamp", "mismatch")
		line, _ = sjson.Set(line, "error", err.Error())
		return line, nil
	case err != nil:
		return "", err
	case stamped:
		line, _ = sjson.Set(line, "stamp", "ok")
	default:
		line, _ = sjson.Set(line, "stamp", "none")
	}

	count, err := filter.ApproximateCount(ctx)
	if err != nil {
		return "", err
	}
	line, _ = sjson.Set(line, "approximate_count", count)
	line, _ = sjson.Set(line, "estimated_false_positive_rate", bloom.EstimateFalsePositiveRate(spec, count))
	return line, nil
}

// runInfo writes a json line per filter, all configured filters when names is empty.
func runInfo(ctx context.Context, out io.Writer, kv kvprovider.KVInterface, names []string) error {
	defs, err := st.GetFilterDefinitions()
	if err != nil {
		return err
	}
	if len(names) > 0 {
		var picked []st.FilterDefinition
		for _, name := range names {
			def, err := st.GetFilterDefinition(name)
			if err != nil {
				return err
			}
			picked = append(picked, def)
		}
		defs = picked
	}
	for _, def := range defs {
		line, err := filterInfo(ctx, kv, def)
		if err != nil {
			return fmt.Errorf("filter %s: %w", def.Name, err)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe filter sizing and fill",
	Long: `Prints the derived size of a filter, whether the bit array in redis was built
with the same size, and an estimate of how many ids it holds.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		kv, err := kvprovider.NewRedisProvider()
		exitOnErr("Error creating redis client", err)
		defer kv.Close()
		var names []string
		if !allFilters {
			names = []string{filterName}
		}
		err = runInfo(cmd.Context(), os.Stdout, kv, names)
		exitOnErr("Error describing filters", err)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&allFilters, "all", false, "Describe every configured filter")
}
