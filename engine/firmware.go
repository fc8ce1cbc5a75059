package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FirmwareAssetPath is the bundled firmware location relative to the asset
// directory.
const FirmwareAssetPath = "4.9/firmware"

// ReadFirmware loads the firmware image from the asset directory. The image
// is read fully into memory before the boot call and must be non-empty.
func ReadFirmware(assetDir string) ([]byte, error) {
	path := filepath.Join(assetDir, FirmwareAssetPath)
	firmware, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read firmware asset %s: %w", path, err)
	}
	if len(firmware) == 0 {
		return nil, errors.New("firmware asset is empty")
	}
	return firmware, nil
}
