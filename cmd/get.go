package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/traitdex/traitdex/internal/rpc"
)

var getCmd = &cobra.Command{
	Use:   "get <impl://crate/version/trait>",
	Short: "Read a trait's implementor index by URI",
	Example: `  traitdex get impl://objc/latest/objc::Message
  traitdex get impl://serde/1.0.0/serde::Serialize
  traitdex get objc/latest/objc::Message`,
	Args: cobra.ExactArgs(1),
	Run:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) {
	uri := strings.TrimPrefix(args[0], "impl://")
	parts := strings.SplitN(uri, "/", 3)
	if len(parts) < 3 {
		log.Fatalf("invalid URI: need crate/version/trait")
	}

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Implementors(context.Background(), rpc.ImplementorsRequest{
		Crate:   parts[0],
		Version: parts[1],
		Trait:   parts[2],
	})
	if err != nil {
		log.Fatalf("get implementors failed: %v", err)
	}

	if resp.DocsHTML != "" {
		fmt.Println(resp.DocsHTML)
	}
	for _, entry := range resp.Entries {
		fmt.Printf("<!-- implementors in %s -->\n", entry.Crate)
		for _, frag := range entry.Fragments {
			fmt.Println(frag)
		}
	}
}
