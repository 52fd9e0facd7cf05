package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/traitdex/traitdex/internal/config"
	"github.com/traitdex/traitdex/internal/daemon"
	"github.com/traitdex/traitdex/internal/rpc"
)

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Clear the daemon's rustdoc JSON cache",
	Long: `Clear the daemon's rustdoc JSON cache. With --all, also drop the
fragment store and every indexed crate, trait, and implementor.`,
	Run: runClearCache,
}

var clearCacheAll bool

func init() {
	clearCacheCmd.Flags().BoolVar(&clearCacheAll, "all", false, "also drop indexed crates and fragments")
}

func runClearCache(cmd *cobra.Command, args []string) {
	client := daemon.NewClient(config.SocketPath())
	if !client.IsAvailable() {
		fmt.Println("daemon is not running")
		return
	}

	if err := client.ClearCache(context.Background(), rpc.ClearCacheRequest{All: clearCacheAll}); err != nil {
		slog.Error("failed to clear cache", "error", err)
		os.Exit(1)
	}
	if clearCacheAll {
		fmt.Println("rustdoc JSON cache and indexed data cleared")
		return
	}
	fmt.Println("rustdoc JSON cache cleared")
}
