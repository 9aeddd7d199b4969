package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/xaenox/moon-harvester/internal/models"
)

// WriteJSONL writes one record per line.
func WriteJSONL(w io.Writer, records []models.ConversationRecord) error {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	return nil
}
