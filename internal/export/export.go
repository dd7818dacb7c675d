package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"book-reader/internal/models"
)

const (
	SheetName  = "Books"
	timeLayout = "2006-01-02 15:04:05"
)

var headers = []string{"ID", "Title", "Format", "Chunks", "Checksum", "Added At"}

// Books writes the catalog of indexed books to an xlsx workbook at path.
func Books(path string, books []models.Book) error {
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return fmt.Errorf("export path must end in .xlsx, got %s", path)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, b := range books {
		row := i + 2
		values := []interface{}{b.ID, b.Title, string(b.Format), b.Chunks, b.Checksum, b.AddedAt.Format(timeLayout)}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "B", 30); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "C", "F", 18); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("books", len(books)).Msg("Catalog exported")
	return nil
}
