package scheduler

import (
	"fmt"
	"os"

	"github.com/tanq16/rangeget/internal/types"
	"github.com/tanq16/rangeget/internal/utils"
	"gopkg.in/yaml.v3"
)

// ReadDownloadList loads a YAML list of {link, op, sha256} entries. The output
// path may be empty, in which case the payload is only verified.
func ReadDownloadList(filePath string) ([]types.DownloadEntry, error) {
	log := utils.GetLogger("config")
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var entries []types.DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries found in %s", filePath)
	}
	for i, entry := range entries {
		if entry.URL == "" {
			return nil, fmt.Errorf("missing URL for entry %d", i+1)
		}
	}
	log.Debug().Int("count", len(entries)).Msg("Entries loaded from YAML")
	return entries, nil
}
