package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ozodon/fedmarket/internal/hub"
	"github.com/ozodon/fedmarket/internal/model"
	"github.com/ozodon/fedmarket/internal/rank"
)

var (
	searchTag    string
	searchMin    float64
	searchMax    float64
	searchLimit  int
	searchViewer string
	tagsLimit    int
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score <source> <target>",
	Short: "Compute the trust score between two actors",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		score := model.TrustScore{
			Source:     args[0],
			Target:     args[1],
			Value:      p.Engine().Score(args[0], args[1]),
			ComputedAt: time.Now().UTC(),
		}
		return printJSON(score)
	},
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search offers ranked by price and seller trust",
	Long: `Search filters offers by term, tag, and price range, then orders
them by rank_score = price * (multiplier - trust). Without --viewer the
trust side is evaluated from the hub's public root actor.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		q := rank.Query{
			Tag:    searchTag,
			Limit:  searchLimit,
			Viewer: searchViewer,
		}
		if len(args) == 1 {
			q.Term = args[0]
		}
		if cmd.Flags().Changed("min-price") {
			q.MinPrice = &searchMin
		}
		if cmd.Flags().Changed("max-price") {
			q.MaxPrice = &searchMax
		}

		results, err := p.Index().Search(cmd.Context(), q)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"results": results})
	},
}

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show hub identity and collection counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cfg, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		info, err := hub.NewService(cfg, p.Store()).Info(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(info)
	},
}

// tagsCmd represents the tags command
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Show top offer tags with counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cfg, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		tags, err := hub.NewService(cfg, p.Store()).TopTags(cmd.Context(), tagsLimit)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"tags": tags})
	},
}

// sellerCmd represents the seller command
var sellerCmd = &cobra.Command{
	Use:   "seller <actor>",
	Short: "Show a seller's offers and incoming-trust summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, cfg, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		summary, err := hub.NewService(cfg, p.Store()).Seller(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

// peersCmd represents the peers command
var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List configured replication peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := openPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		return printJSON(map[string]any{"peers": p.Registry().All()})
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(sellerCmd)
	rootCmd.AddCommand(peersCmd)

	searchCmd.Flags().StringVar(&searchTag, "tag", "", "filter by tag")
	searchCmd.Flags().Float64Var(&searchMin, "min-price", 0, "minimum price")
	searchCmd.Flags().Float64Var(&searchMax, "max-price", 0, "maximum price")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
	searchCmd.Flags().StringVar(&searchViewer, "viewer", "", "actor whose trust view ranks the results")

	tagsCmd.Flags().IntVar(&tagsLimit, "limit", 50, "maximum tags")
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
