package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/terminalledger/commission-recon/internal/application/recon"
)

// WriteJSON saves the report as indented JSON.
func WriteJSON(report *recon.Report, filename string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
