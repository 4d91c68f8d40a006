package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/backing"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/bulkload"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/prom"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

var (
	loadJSONPath    string
	loadFromBacking bool
	loadMetrics     bool
)

// runLoad adds every id from src to the named filter and writes a json summary.
func runLoad(ctx context.Context, out io.Writer, kv kvprovider.KVInterface, name string, src bulkload.Source) (bulkload.Stats, error) {
	filter, err := openFilter(ctx, kv, name)
	if err != nil {
		return bulkload.Stats{}, err
	}
	loader := bulkload.New(filter, bulkload.OptionsFromSettings(name))
	stats, loadErr := loader.Load(ctx, src)

	line, _ := sjson.Set("", "filter", name)
	line, _ = sjson.Set(line, "added", stats.Added)
	line, _ = sjson.Set(line, "failed", stats.Failed)
	line, _ = sjson.Set(line, "retries", stats.Retries)
	if loadErr != nil {
		line, _ = sjson.Set(line, "error", loadErr.Error())
	}
	if _, err := fmt.Fprintln(out, line); err != nil {
		return stats, errors.Join(loadErr, err)
	}
	return stats, loadErr
}

// loadSource picks where ids are read from.
func loadSource(ctx context.Context, args []string) (bulkload.Source, func(), error) {
	if loadFromBacking {
		records, err := backing.NewFromSettings(ctx)
		if err != nil {
			return nil, nil, err
		}
		lister, ok := records.(backing.Lister)
		if !ok {
			return nil, nil, fmt.Errorf("backing store %s cannot list ids", records.Backend())
		}
		return lister, func() {}, nil
	}
	var r io.Reader = os.Stdin
	closer := func() {}
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, nil, err
		}
		r = f
		closer = func() { f.Close() }
	}
	if loadJSONPath != "" {
		return bulkload.NewJSONLinesSource(r, loadJSONPath), closer, nil
	}
	return bulkload.NewLineSource(r), closer, nil
}

var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Populate a filter with ids",
	Long: `Adds ids to a filter. Ids are read one per line from the file, or stdin when
no file or '-' is given. With --json-path each line is parsed as json and the id
taken from that path. With --from-backing every record id in the backing store
is added instead.

Loading is safe to repeat; ids already present are unchanged.

Concurrency, rate and retries are set through BC__LOAD__* settings.`,
	Example: `azul-bloomcache load ids.txt
azul-bloomcache load --json-path user.id users.jsonl
BC__BACKING__BACKEND=sql azul-bloomcache load --from-backing`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if loadMetrics {
			go prom.StartStandalonePromServer()
		}
		ctx := cmd.Context()
		kv, err := kvprovider.NewRedisProvider()
		exitOnErr("Error creating redis client", err)
		defer kv.Close()
		src, closer, err := loadSource(ctx, args)
		exitOnErr("Error opening id source", err)
		defer closer()
		_, err = runLoad(ctx, os.Stdout, kv, filterName, src)
		exitOnErr("Error loading filter", err)
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringVar(&loadJSONPath, "json-path", "", "Read json lines and take the id from this gjson path")
	loadCmd.Flags().BoolVar(&loadFromBacking, "from-backing", false, "Add every id held by the backing store")
	loadCmd.Flags().BoolVar(&loadMetrics, "metrics", false, "Serve prometheus metrics while loading")
	loadCmd.MarkFlagsMutuallyExclusive("json-path", "from-backing")
}
