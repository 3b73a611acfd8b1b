package stages

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// CalibrationDir is the directory core stages look in for their
// calibration JSON files. Reading (not persisting) these files is within
// scope — only the UI-driven calibration workflow that writes them is
// excluded.
var CalibrationDir = "./data/current_calibration"

func calibrationPath(filename string) string {
	return filepath.Join(CalibrationDir, filename)
}

func loadJSON(filename string, out any) bool {
	path := calibrationPath(filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}
	return true
}
