package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/traitdex/traitdex/internal/impljs"
	"github.com/traitdex/traitdex/internal/rpc"
)

var publishCmd = &cobra.Command{
	Use:   "publish <trait.Name.js ...>",
	Short: "Publish implementor artifacts to the daemon",
	Long: `Parse implementor artifact files and publish their mappings through the
daemon's registration point. The trait path is derived from each file's
location inside a trait.impl/ or implementors/ tree; use --trait to name it
explicitly when publishing a single file from elsewhere.`,
	Example: `  traitdex publish doc/trait.impl/objc/trait.Message.js
  traitdex publish --trait objc::runtime::Imp /tmp/trait.Imp.js`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPublish,
}

var publishTrait string

func init() {
	publishCmd.Flags().StringVar(&publishTrait, "trait", "", "qualified trait path (single artifact only)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) {
	if publishTrait != "" && len(args) > 1 {
		log.Fatalf("--trait names one trait; publish one artifact at a time with it")
	}

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	for _, path := range args {
		// Parse locally first: a malformed artifact fails here, not halfway
		// through a multi-file publish on the daemon side.
		m, err := impljs.ParseFile(path)
		if err != nil {
			log.Fatalf("reading artifact: %v", err)
		}
		trait := m.Trait
		if publishTrait != "" {
			trait = publishTrait
		}
		if trait == "" {
			log.Fatalf("%s: cannot derive trait path from location; pass --trait", path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("reading artifact: %v", err)
		}
		resp, err := client.PublishArtifact(context.Background(), rpc.PublishRequest{
			Artifact: string(data),
			Trait:    trait,
		})
		if err != nil {
			log.Fatalf("publishing %s: %v", path, err)
		}

		state := "registered"
		if resp.Queued {
			state = "queued"
		}
		fmt.Printf("  %s: %s (%d crates, %d fragments)\n", trait, state, resp.Crates, resp.Fragments)
	}
}
