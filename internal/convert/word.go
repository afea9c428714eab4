package convert

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// wordConverter は docx の本文テキストを抽出してPDF化するプロセス内実装です。
// docx は zip なので word/document.xml から段落を取り出します。
// 旧形式の .doc はバイナリフォーマットのため外部プロセス経由でのみ変換できます。
type wordConverter struct{}

func (wordConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(inputPath), "."))
	if ext != "docx" {
		return newError(CodeConversionFailed,
			fmt.Sprintf("%s の変換には外部コンバーターが必要です。", ext), nil)
	}

	paragraphs, err := readDocxParagraphs(inputPath)
	if err != nil {
		return newError(CodeConversionFailed, "Word文書の解析に失敗しました。", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, para := range paragraphs {
		pdf.MultiCell(0, 5, tr(para), "", "L", false)
		pdf.Ln(2)
	}

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return newError(CodeConversionFailed, "PDFの書き出しに失敗しました。", err)
	}
	return nil
}

func readDocxParagraphs(path string) ([]string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer reader.Close()

	var document *zip.File
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			document = f
			break
		}
	}
	if document == nil {
		return nil, fmt.Errorf("word/document.xml not found")
	}

	rc, err := document.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	return parseDocumentXML(rc)
}

func parseDocumentXML(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	inParagraph := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
			case "t":
				if inParagraph {
					var text string
					if err := decoder.DecodeElement(&text, &t); err != nil {
						return nil, fmt.Errorf("failed to decode text run: %w", err)
					}
					current.WriteString(text)
				}
			case "br":
				if inParagraph {
					current.WriteString("\n")
				}
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
				inParagraph = false
			}
		}
	}

	return paragraphs, nil
}
