package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/traitdex/traitdex/internal/impljs"
	"github.com/traitdex/traitdex/internal/rpc"
)

var emitCmd = &cobra.Command{
	Use:   "emit <crate[@version]>",
	Short: "Write a crate's implementor artifacts as a site tree",
	Long: `Regenerate the trait.impl/<crate>/trait.<Name>.js artifacts for an
indexed crate, one file per registered trait, under the output directory.`,
	Example: `  traitdex emit objc --out ./doc
  traitdex emit serde@1.0.219 --out ./site`,
	Args: cobra.ExactArgs(1),
	Run:  runEmit,
}

var emitOut string

func init() {
	emitCmd.Flags().StringVar(&emitOut, "out", ".", "output directory (site root)")
	rootCmd.AddCommand(emitCmd)
}

func runEmit(cmd *cobra.Command, args []string) {
	name, version, _ := strings.Cut(args[0], "@")

	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}
	ctx := context.Background()

	traits, err := client.ListTraits(ctx, rpc.ListTraitsRequest{Crate: name, Version: version})
	if err != nil {
		log.Fatalf("listing traits failed: %v", err)
	}
	if len(traits.Traits) == 0 {
		fmt.Println("no traits registered for", args[0])
		return
	}

	for _, t := range traits.Traits {
		resp, err := client.Implementors(ctx, rpc.ImplementorsRequest{
			Crate:   name,
			Version: version,
			Trait:   t.Path,
		})
		if err != nil {
			log.Fatalf("getting implementors of %s failed: %v", t.Path, err)
		}

		m := impljs.NewMapping()
		m.Trait = t.Path
		for _, entry := range resp.Entries {
			m.Set(entry.Crate, entry.Fragments)
		}

		data, err := impljs.Emit(m)
		if err != nil {
			log.Fatalf("emitting %s failed: %v", t.Path, err)
		}
		rel, err := impljs.ArtifactPath(t.Path)
		if err != nil {
			log.Fatalf("emitting %s failed: %v", t.Path, err)
		}

		dest := filepath.Join(emitOut, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			log.Fatalf("creating %s: %v", filepath.Dir(dest), err)
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			log.Fatalf("writing %s: %v", dest, err)
		}
		fmt.Printf("  %s (%d implementors)\n", dest, t.Implementors)
	}
}
