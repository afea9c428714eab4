// Package convert はドキュメント変換機能を提供します。
package convert

// ConversionType は対応している変換種別を表します。
type ConversionType string

const (
	WordToPDF  ConversionType = "word_to_pdf"
	PDFToWord  ConversionType = "pdf_to_word"
	TxtToPDF   ConversionType = "txt_to_pdf"
	ImageToPDF ConversionType = "image_to_pdf"
	ExcelToPDF ConversionType = "excel_to_pdf"
)

// Definition は変換種別ごとの入出力仕様を表します。
type Definition struct {
	FromFormat  string
	ToFormat    string
	AllowedExts []string
	TargetExt   string
}

var definitions = map[ConversionType]Definition{
	WordToPDF: {
		FromFormat:  "word",
		ToFormat:    "pdf",
		AllowedExts: []string{"doc", "docx"},
		TargetExt:   "pdf",
	},
	PDFToWord: {
		FromFormat:  "pdf",
		ToFormat:    "word",
		AllowedExts: []string{"pdf"},
		TargetExt:   "docx",
	},
	TxtToPDF: {
		FromFormat:  "txt",
		ToFormat:    "pdf",
		AllowedExts: []string{"txt"},
		TargetExt:   "pdf",
	},
	ImageToPDF: {
		FromFormat:  "image",
		ToFormat:    "pdf",
		AllowedExts: []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff"},
		TargetExt:   "pdf",
	},
	ExcelToPDF: {
		FromFormat:  "excel",
		ToFormat:    "pdf",
		AllowedExts: []string{"xls", "xlsx", "csv"},
		TargetExt:   "pdf",
	},
}

// Lookup は変換種別の定義を返します。
func Lookup(t ConversionType) (Definition, bool) {
	def, ok := definitions[t]
	return def, ok
}

// Types は対応しているすべての変換種別を返します。
func Types() []ConversionType {
	return []ConversionType{WordToPDF, PDFToWord, TxtToPDF, ImageToPDF, ExcelToPDF}
}

func typeForFormats(from, to string) (ConversionType, bool) {
	for t, def := range definitions {
		if def.FromFormat == from && def.ToFormat == to {
			return t, true
		}
	}
	return "", false
}
