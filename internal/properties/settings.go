package properties

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/springcomet/kabalot/constants"
	"github.com/springcomet/kabalot/internal/common"
)

// Settings are the per-run properties.
type Settings struct {
	InputFolderID    string
	OutputFolderName string
	Mode             constants.RunMode
	Known            KnownFiles
}

// LoadSettings reads every run property once. A missing required property or an
// invalid knownFileIDs value is a CONFIG_ERROR.
func LoadSettings(ctx context.Context, s Store) (Settings, error) {
	var out Settings
	required := []struct {
		key string
		dst *string
	}{
		{constants.PropInputFolderID, &out.InputFolderID},
		{constants.PropOutputFolderName, &out.OutputFolderName},
	}
	for _, r := range required {
		v, ok, err := s.Get(ctx, r.key)
		if err != nil {
			return Settings{}, fmt.Errorf("read property %s: %w", r.key, err)
		}
		if !ok || v == "" {
			return Settings{}, common.NewAppError(common.CodeConfig, "missing property "+r.key, common.ErrConfig)
		}
		*r.dst = v
	}

	mode, _, err := s.Get(ctx, constants.PropRunMode)
	if err != nil {
		return Settings{}, fmt.Errorf("read property %s: %w", constants.PropRunMode, err)
	}
	out.Mode = constants.ParseRunMode(mode)

	raw, _, err := s.Get(ctx, constants.PropKnownFileIDs)
	if err != nil {
		return Settings{}, fmt.Errorf("read property %s: %w", constants.PropKnownFileIDs, err)
	}
	out.Known, err = ParseKnownFiles(raw)
	if err != nil {
		return Settings{}, common.NewAppError(common.CodeConfig, "invalid property "+constants.PropKnownFileIDs, err)
	}
	return out, nil
}

// SaveKnownFiles persists k as the knownFileIDs property.
func SaveKnownFiles(ctx context.Context, s Store, k KnownFiles) error {
	b, err := json.Marshal(k)
	if err != nil {
		return err
	}
	if err := s.Set(ctx, constants.PropKnownFileIDs, string(b)); err != nil {
		return fmt.Errorf("write property %s: %w", constants.PropKnownFileIDs, err)
	}
	return nil
}
