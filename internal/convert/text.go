package convert

import (
	"context"
	"os"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// textConverter はテキストファイルをPDFへ変換するプロセス内実装です。
// 空行区切りを段落として扱います。
type textConverter struct{}

func (textConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return newError(CodeConversionFailed, "テキストファイルの読み込みに失敗しました。", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	wrote := false
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pdf.MultiCell(0, 5, tr(para), "", "L", false)
		pdf.Ln(3)
		wrote = true
	}
	if !wrote {
		// 段落が取れない場合は全文を1ブロックとして出力する
		pdf.MultiCell(0, 5, tr(text), "", "L", false)
	}

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return newError(CodeConversionFailed, "PDFの書き出しに失敗しました。", err)
	}
	return nil
}
