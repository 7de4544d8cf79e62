package store

import (
	"encoding/json"
	"os"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/types"
)

// LoadCoreSettings reads L0 from path. L0 is static and read-only during a
// request, so there is no corresponding Save in the hot path — it is only
// ever written by administrative tooling.
func LoadCoreSettings(path string) (types.CoreSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.CoreSettings{}, nil
		}
		return types.CoreSettings{}, errs.Wrap(errs.Storage, "read L0 core settings", err)
	}
	var settings types.CoreSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return types.CoreSettings{}, errs.Wrap(errs.IndexCorrupted, "decode L0 core settings", err)
	}
	return settings, nil
}
