package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sheetvec/sheetvec"
	"github.com/sheetvec/sheetvec/storage"
)

var (
	dbPath     string
	dimensions int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sheetvec",
	Short: "CLI tool for the sheetvec embedded vector store",
	Long:  `A command-line interface for managing spreadsheet region embeddings in a sheetvec store.`,
}

var upsertCmd = &cobra.Command{
	Use:   "upsert <jsonl-file>",
	Short: "Upsert records from a newline-delimited JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readRecordsFile(args[0])
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		if err := store.Upsert(ctx, records); err != nil {
			return fmt.Errorf("upsert failed: %w", err)
		}

		fmt.Printf("Upserted %d records\n", len(records))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a record by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		record, err := store.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(record, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("ID: %s\n", record.ID)
		fmt.Printf("Workbook: %s\n", record.Metadata.WorkbookID)
		fmt.Printf("Sheet: %s\n", record.Metadata.SheetName)
		fmt.Printf("Title: %s\n", record.Metadata.Title)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete records by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		if err := store.Delete(ctx, args); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}

		fmt.Printf("Deleted %d record(s)\n", len(args))
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query for the nearest records to a vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		workbookID, _ := cmd.Flags().GetString("workbook")
		k, _ := cmd.Flags().GetInt("top-k")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		results, err := store.Query(ctx, vector, k, sheetvec.QueryOptions{WorkbookID: workbookID})
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Found %d result(s):\n", len(results))
		for i, r := range results {
			fmt.Printf("%d. %s (score: %.4f) %s!%s\n", i+1, r.ID, r.Score, r.Metadata.WorkbookID, r.Metadata.SheetName)
			if verbose && r.Metadata.Title != "" {
				fmt.Printf("   Title: %s\n", r.Metadata.Title)
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		stats, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		outputJSON, _ := cmd.Flags().GetBool("json")
		if outputJSON {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Println("Store statistics:")
		fmt.Printf("  Records: %d\n", stats.Count)
		fmt.Printf("  Dimension: %d\n", stats.Dimension)
		fmt.Printf("  Size: %.2f MB\n", float64(stats.SizeBytes)/(1024*1024))
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Reclaim space freed by deletes and re-persist",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		ctx := context.Background()
		if err := store.Compact(ctx); err != nil {
			return fmt.Errorf("compact failed: %w", err)
		}
		fmt.Println("Store compacted successfully")
		return nil
	},
}

func parseVector(str string) ([]float32, error) {
	if str == "" {
		return nil, fmt.Errorf("vector is required")
	}
	parts := strings.Split(str, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector format: %w", err)
		}
		vector = append(vector, float32(val))
	}
	return vector, nil
}

func readRecordsFile(path string) ([]sheetvec.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var records []sheetvec.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record sheetvec.Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("invalid JSON line: %w", err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

func openStore() (sheetvec.Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path not specified")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("--dimensions is required and must be positive")
	}

	opts := sheetvec.DefaultOpenOptions(dimensions)
	opts.Storage = storage.NewFileBackend(dbPath)

	store, err := sheetvec.Open(context.Background(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "vectors.sheetvec", "Store file path")
	rootCmd.PersistentFlags().IntVarP(&dimensions, "dimensions", "n", 0, "Vector dimension")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	getCmd.Flags().Bool("json", false, "Output as JSON")

	queryCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	queryCmd.Flags().String("workbook", "", "Restrict to one workbook id")
	queryCmd.Flags().Int("top-k", 10, "Number of results")
	queryCmd.Flags().Bool("json", false, "Output as JSON")
	queryCmd.MarkFlagRequired("vector")

	statsCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		upsertCmd,
		getCmd,
		deleteCmd,
		queryCmd,
		statsCmd,
		compactCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
