package convert

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// imageConverter は画像1枚をA4ページへ収めたPDFを生成します。
// gofpdf が直接扱えない bmp/tiff は png へ再エンコードしてから埋め込みます。
type imageConverter struct{}

func (imageConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(inputPath), "."))

	imgPath := inputPath
	var width, height float64

	switch ext {
	case "jpg", "jpeg", "png", "gif":
		w, h, err := imageDimensions(inputPath)
		if err != nil {
			return newError(CodeConversionFailed, "画像の読み込みに失敗しました。", err)
		}
		width, height = w, h
	case "bmp", "tiff", "tif":
		converted, w, h, err := reencodePNG(inputPath, filepath.Dir(outputPath), ext)
		if err != nil {
			return newError(CodeConversionFailed, "画像の再エンコードに失敗しました。", err)
		}
		defer os.Remove(converted)
		imgPath = converted
		width, height = w, h
	default:
		return newError(CodeConversionFailed, fmt.Sprintf("対応していない画像形式です: %s", ext), nil)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pageWidth, pageHeight := pdf.GetPageSize()
	const margin = 10.0
	availWidth := pageWidth - 2*margin
	availHeight := pageHeight - 2*margin

	scale := availWidth / width
	if hs := availHeight / height; hs < scale {
		scale = hs
	}
	drawWidth := width * scale
	drawHeight := height * scale
	x := margin + (availWidth-drawWidth)/2
	y := margin + (availHeight-drawHeight)/2

	pdf.Image(imgPath, x, y, drawWidth, drawHeight, false, "", 0, "")

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return newError(CodeConversionFailed, "PDFの書き出しに失敗しました。", err)
	}
	return nil
}

func imageDimensions(path string) (float64, float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, err
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

func reencodePNG(path, dir, ext string) (string, float64, float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, 0, err
	}
	defer file.Close()

	var img image.Image
	switch ext {
	case "bmp":
		img, err = bmp.Decode(file)
	default:
		img, err = tiff.Decode(file)
	}
	if err != nil {
		return "", 0, 0, err
	}

	out, err := os.CreateTemp(dir, "img-*.png")
	if err != nil {
		return "", 0, 0, err
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		os.Remove(out.Name())
		return "", 0, 0, err
	}

	bounds := img.Bounds()
	return out.Name(), float64(bounds.Dx()), float64(bounds.Dy()), nil
}
