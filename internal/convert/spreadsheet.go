package convert

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// 巨大なCSVでページ数が暴れないよう行数を打ち切る
const maxCSVRows = 100

// spreadsheetConverter はCSVを表形式のPDFへ変換するプロセス内実装です。
// xls/xlsx のパースには対応しておらず、外部プロセス経由でのみ変換できます。
type spreadsheetConverter struct{}

func (spreadsheetConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(inputPath), "."))
	if ext != "csv" {
		return newError(CodeConversionFailed,
			fmt.Sprintf("%s の変換には外部コンバーターが必要です。", ext), nil)
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return newError(CodeConversionFailed, "CSVファイルの読み込みに失敗しました。", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return newError(CodeConversionFailed, "CSVの解析に失敗しました。", err)
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 9)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	const cellWidth = 40.0
	const cellHeight = 6.0

	for i, row := range rows {
		if i >= maxCSVRows {
			break
		}
		for _, cell := range row {
			text := cell
			if len(text) > 20 {
				text = text[:20]
			}
			pdf.CellFormat(cellWidth, cellHeight, tr(text), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return newError(CodeConversionFailed, "PDFの書き出しに失敗しました。", err)
	}
	return nil
}
