package trial

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"thermomap/internal/logging"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Extensions tried, in order, when locating a participant's record file.
var Extensions = []string{".csv", ".xlsx"}

// FindFile returns the record table for participant in dir:
// p<P>_data.csv or p<P>_data.xlsx.
func FindFile(dir string, participant int) (string, error) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, fmt.Sprintf("p%d_data%s", participant, ext))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w for participant %d in %s", ErrNoRecordFile, participant, dir)
}

// LoadFile reads and validates one record table. participant may be 0 when
// the table carries its own participant column. Invalid rows are left out of
// the records and returned as RowErrors.
func LoadFile(path string, participant int) ([]Record, []RowError, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, nil, fmt.Errorf("unsupported record file %s", path)
	}
	if err != nil {
		return nil, nil, err
	}

	records, skipped, err := parseRows(rows, participant)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, skipped, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// LoadDir loads the record tables of the given participants from dir.
// A missing or unreadable table is logged and contributes no records.
func LoadDir(dir string, participants []int, logger *zap.Logger) []Record {
	logger = logging.OrNop(logger)

	var all []Record
	for _, p := range participants {
		path, err := FindFile(dir, p)
		if err != nil {
			logger.Warn("no records for participant", zap.Int("participant", p), zap.Error(err))
			continue
		}
		records, skipped, err := LoadFile(path, p)
		if err != nil {
			logger.Warn("skipping unreadable records", zap.Int("participant", p), zap.String("path", path), zap.Error(err))
			continue
		}
		for _, e := range skipped {
			logger.Warn("skipping invalid row",
				zap.Int("participant", p),
				zap.String("path", path),
				zap.Int("row", e.Row),
				zap.Error(e.Err))
		}
		logger.Debug("loaded records", zap.Int("participant", p), zap.String("path", path), zap.Int("trials", len(records)))
		all = append(all, records...)
	}
	return all
}
