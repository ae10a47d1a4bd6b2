package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter is one row of a sheet.
type ExcelExporter interface {
	GetCellValues() []interface{}
}

type excelSheet struct {
	name     string
	headings []string
	rows     []ExcelExporter
}

func buildWorkbook(sheets ...excelSheet) (*excelize.File, error) {
	f := excelize.NewFile()
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, err
		}

		for col, h := range sheet.headings {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet.name, cell, h); err != nil {
				return nil, err
			}
		}

		rowNo := 2
		for _, d := range sheet.rows {
			for col, value := range d.GetCellValues() {
				cell, err := excelize.CoordinatesToCellName(col+1, rowNo)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(sheet.name, cell, value); err != nil {
					return nil, fmt.Errorf("sheet %s row %d: %w", sheet.name, rowNo, err)
				}
			}
			rowNo++
		}
	}
	return f, nil
}

func writeWorkbook(w io.Writer, sheets ...excelSheet) error {
	f, err := buildWorkbook(sheets...)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func saveWorkbook(filename string, sheets ...excelSheet) error {
	f, err := buildWorkbook(sheets...)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}
