package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/larder/internal/core/domain"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Read the local collection",
	Long:  `List and inspect records stored by the last sync.`,
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records",
	Args:  cobra.NoArgs,
	RunE:  runRecordsList,
}

var recordsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsGet,
}

func init() {
	recordsListCmd.Flags().IntP("limit", "n", 0, "maximum records to list (0 = all)")
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsGetCmd)
	rootCmd.AddCommand(recordsCmd)
}

func runRecordsList(cmd *cobra.Command, _ []string) error {
	if recordService == nil {
		return errors.New("record service not configured")
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("getting limit flag: %w", err)
	}

	info, err := recordService.Info(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read collection: %w", err)
	}
	records, err := recordService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	cmd.Printf("Collection %s: %d records\n", info.Name, info.Records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	for i := range records {
		rec := records[i]
		title := domain.FieldString(rec.Record["title"])
		cmd.Printf("  %-40s %-12s %s\n", rec.Record.ID(), rec.Rev, title)
	}
	return nil
}

func runRecordsGet(cmd *cobra.Command, args []string) error {
	if recordService == nil {
		return errors.New("record service not configured")
	}

	rec, err := recordService.Get(cmd.Context(), args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("record %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}

	data, err := json.MarshalIndent(rec.Record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
