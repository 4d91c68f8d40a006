package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/backing"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/bloom"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/bulkload"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/prom"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/restapi"
	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/spf13/cobra"
)

var (
	servePopulate     bool
	serveFillInterval time.Duration
)

// reportFill publishes the estimated item count of a filter.
func reportFill(ctx context.Context, name string, filter *bloom.Filter[string]) error {
	count, err := filter.ApproximateCount(ctx)
	if err != nil {
		return err
	}
	prom.FilterApproximateItems.WithLabelValues(name).Set(float64(count))
	return nil
}

// watchFill calls reportFill for every filter until ctx is cancelled.
func watchFill(ctx context.Context, filters map[string]*bloom.Filter[string], interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for name, filter := range filters {
			if err := reportFill(ctx, name, filter); err != nil {
				st.Logger.Warn().Err(err).Str("filter", name).Msg("failed to count filter bits")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// populate loads the primary filter from the backing store in the background.
func populate(ctx context.Context, filter *bloom.Filter[string]) error {
	records, err := backing.NewFromSettings(ctx)
	if err != nil {
		return err
	}
	lister, ok := records.(backing.Lister)
	if !ok {
		return fmt.Errorf("backing store %s cannot list ids", records.Backend())
	}
	go func() {
		loader := bulkload.New(filter, bulkload.OptionsFromSettings(filterName))
		if _, err := loader.Load(ctx, lister); err != nil {
			st.Logger.Error().Err(err).Msg("populating filter from backing store failed")
		}
	}()
	return nil
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops listener for a bloomcache deployment",
	Long: `Stamps every configured filter, optionally populates the selected filter from
the backing store, then serves health, metrics and profiling endpoints until
interrupted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		kv, err := kvprovider.NewRedisProvider()
		exitOnErr("Error creating redis client", err)
		defer kv.Close()

		defs, err := st.GetFilterDefinitions()
		exitOnErr("Error reading filter definitions", err)
		filters := map[string]*bloom.Filter[string]{}
		probes := []restapi.Probe{{Name: "cache", Partition: kvprovider.Partition(st.Cache.Partition)}}
		for _, def := range defs {
			filter, err := openFilter(ctx, kv, def.Name)
			exitOnErr("Error opening filter "+def.Name, err)
			filters[def.Name] = filter
			probes = append(probes, restapi.Probe{Name: "filter_" + def.Name, Partition: filter.Partition()})
		}

		if servePopulate {
			filter, ok := filters[filterName]
			if !ok {
				exitOnErr("Error populating filter", fmt.Errorf("no filter named '%s'", filterName))
			}
			exitOnErr("Error populating filter", populate(ctx, filter))
		}
		go watchFill(ctx, filters, serveFillInterval)

		ops := restapi.NewOps(kv, probes...)
		st.Logger.Info().Str("addr", st.Settings.ListenAddr).Int("filters", len(filters)).Msg("serving")
		exitOnErr("Error serving", ops.Serve(ctx, st.Settings.ListenAddr))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&servePopulate, "populate", false, "Load the selected filter from the backing store on start")
	serveCmd.Flags().DurationVar(&serveFillInterval, "fill-interval", time.Minute, "How often filter fill metrics are refreshed")
}
