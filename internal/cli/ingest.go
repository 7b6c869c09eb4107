package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ozodon/fedmarket/internal/pipeline"
)

var (
	ingestFrom    string
	ingestWorkers int
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest federated activities from a file or stdin",
	Long: `Ingest reads activity JSON and runs it through the hub pipeline:
normalize, store, update the trust graph, gate flags, and replicate
first-seen local claims to peers.

Input is either a single JSON object or one activity per line (JSONL).
Use --from when re-injecting claims that arrived from a peer hub, so
loop prevention and fan-out exclusion apply.

Example:
  fedmarketd ingest offer.json
  cat activities.jsonl | fedmarketd ingest
  fedmarketd ingest activities.jsonl --workers 8`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestFrom, "from", "", "peer domain the activities arrived from")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 4, "concurrent workers for multi-line input")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	activities, err := readActivities(in)
	if err != nil {
		return err
	}
	if len(activities) == 0 {
		return fmt.Errorf("no activities in input")
	}

	p, _, err := openPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := cmd.Context()
	if len(activities) == 1 || ingestFrom != "" {
		// Replication input keeps arrival order; no pool
		return ingestSequential(ctx, p, activities)
	}

	outcomes := p.IngestBatch(ctx, activities, ingestWorkers)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "activity %s: %v\n", o.Ref, o.Err)
		}
	}
	fmt.Printf("ingested %d activities, %d failed\n", len(outcomes)-failed, failed)
	return nil
}

func ingestSequential(ctx context.Context, p *pipeline.Pipeline, activities [][]byte) error {
	for i, raw := range activities {
		result, err := p.Ingest(ctx, raw, ingestFrom)
		if err != nil {
			fmt.Fprintf(os.Stderr, "activity %d: %v\n", i, err)
			continue
		}
		out, _ := json.Marshal(result)
		fmt.Println(string(out))
	}
	return nil
}

// readActivities accepts a single JSON object or JSONL
func readActivities(in io.Reader) ([][]byte, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	if !strings.Contains(trimmed, "\n") {
		return [][]byte{[]byte(trimmed)}, nil
	}

	var activities [][]byte
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		activities = append(activities, []byte(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return activities, nil
}
