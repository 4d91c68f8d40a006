package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
)

// runCheck writes one json line per id with the filter's answer. Nothing is written to redis.
func runCheck(ctx context.Context, out io.Writer, kv kvprovider.KVInterface, name string, ids []string) error {
	filter, err := readFilter(ctx, kv, name)
	if err != nil {
		return err
	}
	for _, id := range ids {
		line, _ := sjson.Set("", "id", id)
		maybe, err := filter.Contains(ctx, id)
		switch {
		case err != nil:
			line, _ = sjson.Set(line, "result", describeErr(err))
			line, _ = sjson.Set(line, "error", err.Error())
		case maybe:
			line, _ = sjson.Set(line, "result", "maybe")
		default:
			line, _ = sjson.Set(line, "result", "absent")
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

var checkCmd = &cobra.Command{
	Use:   "check <id>...",
	Short: "Test ids against a filter",
	Long: `Prints whether each id may be present in the filter. An "absent" result is
definite, a "maybe" result can be a false positive.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kv, err := kvprovider.NewRedisProvider()
		exitOnErr("Error creating redis client", err)
		defer kv.Close()
		err = runCheck(cmd.Context(), os.Stdout, kv, filterName, args)
		exitOnErr("Error checking filter", err)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
