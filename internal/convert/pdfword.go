package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// pdfWordConverter はPDFからテキストを抜き出して最小構成の docx を
// 組み立てるプロセス内実装です。レイアウトは保持しません。
type pdfWordConverter struct{}

func (pdfWordConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := pdfapi.PageCountFile(inputPath); err != nil {
		return newError(CodeConversionFailed, "PDFファイルの解析に失敗しました。", err)
	}

	extractDir, err := os.MkdirTemp(filepath.Dir(outputPath), "extract-")
	if err != nil {
		return newError(CodeConversionFailed, "作業ディレクトリの作成に失敗しました。", err)
	}
	defer os.RemoveAll(extractDir)

	if err := pdfapi.ExtractContentFile(inputPath, extractDir, nil, nil); err != nil {
		return newError(CodeConversionFailed, "PDFコンテンツの抽出に失敗しました。", err)
	}

	entries, err := filepath.Glob(filepath.Join(extractDir, "*"))
	if err != nil {
		return newError(CodeConversionFailed, "抽出結果の列挙に失敗しました。", err)
	}
	sort.Strings(entries)

	var paragraphs []string
	for _, entry := range entries {
		data, err := os.ReadFile(entry)
		if err != nil {
			continue
		}
		if text := scrapeContentText(data); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	if len(paragraphs) == 0 {
		paragraphs = []string{""}
	}

	if err := writeDocx(outputPath, paragraphs); err != nil {
		return newError(CodeConversionFailed, "Word文書の書き出しに失敗しました。", err)
	}
	return nil
}

// scrapeContentText はデコード済みコンテンツストリームからPDF文字列
// リテラルを拾い集めます。テキスト描画演算子の引数以外のリテラルは
// 実際上ほとんど現れないため、括弧内をすべてテキストとして扱います。
func scrapeContentText(data []byte) string {
	var out strings.Builder
	depth := 0
	var literal strings.Builder

	for i := 0; i < len(data); i++ {
		b := data[i]
		if depth == 0 {
			if b == '(' {
				depth = 1
				literal.Reset()
			}
			continue
		}

		switch b {
		case '\\':
			if i+1 < len(data) {
				i++
				switch data[i] {
				case 'n':
					literal.WriteByte('\n')
				case 't':
					literal.WriteByte('\t')
				case '(', ')', '\\':
					literal.WriteByte(data[i])
				}
			}
		case '(':
			depth++
			literal.WriteByte(b)
		case ')':
			depth--
			if depth == 0 {
				if s := literal.String(); strings.TrimSpace(s) != "" {
					if out.Len() > 0 {
						out.WriteByte(' ')
					}
					out.WriteString(s)
				}
			} else {
				literal.WriteByte(b)
			}
		default:
			literal.WriteByte(b)
		}
	}

	return strings.TrimSpace(out.String())
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

// writeDocx は段落のみを持つ最小構成の docx パッケージを生成します。
func writeDocx(outputPath string, paragraphs []string) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer file.Close()

	zw := zip.NewWriter(file)

	parts := []struct {
		name string
		body []byte
	}{
		{"[Content_Types].xml", []byte(docxContentTypes)},
		{"_rels/.rels", []byte(docxRels)},
		{"word/document.xml", buildDocumentXML(paragraphs)},
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to create %s: %w", part.name, err)
		}
		if _, err := w.Write(part.body); err != nil {
			zw.Close()
			return fmt.Errorf("failed to write %s: %w", part.name, err)
		}
	}

	return zw.Close()
}

func buildDocumentXML(paragraphs []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, para := range paragraphs {
		buf.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		_ = xml.EscapeText(&buf, []byte(para))
		buf.WriteString(`</w:t></w:r></w:p>`)
	}
	buf.WriteString(`</w:body></w:document>`)
	return buf.Bytes()
}
