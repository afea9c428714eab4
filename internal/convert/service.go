package convert

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yourusername/doc-forge/internal/config"
)

// Converter は1つの(from,to)ペアに対する変換処理を実装します。
// 入力/出力ともファイルパスで受け渡し、成否のみを返します。
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// Service はアップロードの検証・保存と変換処理の呼び出しを担います。
type Service struct {
	cfg        *config.Config
	converters map[ConversionType]Converter
	now        func() time.Time
}

// Submission は受理された変換リクエスト1件の情報を表します。
type Submission struct {
	JobID             string
	OriginalFilename  string
	ConvertedFilename string
	FromFormat        string
	ToFormat          string
	FileSize          int64
	InputPath         string
	OutputPath        string
}

// NewService は Service を作成し、作業ディレクトリを準備します。
// SofficePath が設定されている場合、Office系の変換は外部プロセスを優先し、
// 失敗時にプロセス内フォールバックへ切り替えます。
func NewService(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	word := Converter(wordConverter{})
	excel := Converter(spreadsheetConverter{})
	pdfWord := Converter(pdfWordConverter{})
	if cfg.SofficePath != "" {
		word = &officeConverter{binPath: cfg.SofficePath, targetExt: "pdf", fallback: word}
		excel = &officeConverter{binPath: cfg.SofficePath, targetExt: "pdf", fallback: excel}
		pdfWord = &officeConverter{binPath: cfg.SofficePath, targetExt: "docx", fallback: pdfWord}
	}

	return &Service{
		cfg: cfg,
		converters: map[ConversionType]Converter{
			WordToPDF:  word,
			PDFToWord:  pdfWord,
			TxtToPDF:   textConverter{},
			ImageToPDF: imageConverter{},
			ExcelToPDF: excel,
		},
		now: time.Now,
	}, nil
}

// PrepareSubmission はアップロードを検証して作業ディレクトリへ保存し、
// ジョブ投入に必要な情報を組み立てます。変換自体はここでは実行しません。
func (s *Service) PrepareSubmission(ctx context.Context, file *multipart.FileHeader, t ConversionType) (*Submission, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError(CodeInvalidInput, "変換するファイルを選択してください。", nil)
	}
	def, ok := Lookup(t)
	if !ok {
		return nil, newError(CodeInvalidInput, fmt.Sprintf("対応していない変換種別です: %s", t), nil)
	}

	originalName := filepath.Base(file.Filename)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if !containsExt(def.AllowedExts, ext) {
		return nil, newError(CodeInvalidFormat,
			fmt.Sprintf("対応していないファイル形式です。対応形式: %s", strings.Join(def.AllowedExts, ", ")), nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	inputPath := filepath.Join(s.cfg.WorkDir, jobID+"_"+originalName)
	if err := saveUpload(file, inputPath); err != nil {
		s.DiscardUpload(inputPath)
		return nil, fmt.Errorf("アップロードの保存に失敗しました: %w", err)
	}

	// 保存後に実ファイルを再検証する。宣言サイズは信用しない。
	info, err := os.Stat(inputPath)
	if err != nil {
		s.DiscardUpload(inputPath)
		return nil, fmt.Errorf("アップロードの確認に失敗しました: %w", err)
	}
	if info.Size() > s.cfg.MaxFileSize {
		s.DiscardUpload(inputPath)
		return nil, newError(CodeFileTooLarge,
			fmt.Sprintf("ファイルサイズが上限(%dMB)を超えています。", s.cfg.MaxFileSize/(1024*1024)), nil)
	}

	if err := sniffContent(inputPath, def); err != nil {
		s.DiscardUpload(inputPath)
		return nil, err
	}

	convertedName := uniqueFilename(originalName, def.TargetExt)

	return &Submission{
		JobID:             jobID,
		OriginalFilename:  originalName,
		ConvertedFilename: convertedName,
		FromFormat:        def.FromFormat,
		ToFormat:          def.ToFormat,
		FileSize:          info.Size(),
		InputPath:         inputPath,
		OutputPath:        filepath.Join(s.cfg.WorkDir, convertedName),
	}, nil
}

// Run は(from,to)ペアに対応する Converter を実行します。
func (s *Service) Run(ctx context.Context, from, to, inputPath, outputPath string) error {
	t, ok := typeForFormats(from, to)
	if !ok {
		return newError(CodeConversionFailed, fmt.Sprintf("対応していない変換です: %s -> %s", from, to), nil)
	}
	conv, ok := s.converters[t]
	if !ok {
		return newError(CodeConversionFailed, fmt.Sprintf("変換処理が登録されていません: %s", t), nil)
	}
	return conv.Convert(ctx, inputPath, outputPath)
}

// DiscardUpload は一時ファイルを削除します。削除エラーは無視します。
func (s *Service) DiscardUpload(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// uniqueFilename は元ファイル名の語幹にランダムな接尾辞を付けた出力名を生成します。
func uniqueFilename(originalName, targetExt string) string {
	stem := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s_%s.%s", stem, suffix, targetExt)
}

func saveUpload(file *multipart.FileHeader, path string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// sniffContent は拡張子偽装を弾くため、シグネチャベースの形式検査を行います。
// テキスト系はシグネチャで判別できないため、pdf/image 系のみ検査します。
func sniffContent(path string, def Definition) error {
	switch def.FromFormat {
	case "pdf":
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			return fmt.Errorf("ファイル形式の判定に失敗しました: %w", err)
		}
		if !mtype.Is("application/pdf") {
			return newError(CodeInvalidFormat,
				fmt.Sprintf("ファイルの内容がPDFではありません (detected: %s)", mtype.String()), nil)
		}
	case "image":
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			return fmt.Errorf("ファイル形式の判定に失敗しました: %w", err)
		}
		if !strings.HasPrefix(mtype.String(), "image/") {
			return newError(CodeInvalidFormat,
				fmt.Sprintf("ファイルの内容が画像ではありません (detected: %s)", mtype.String()), nil)
		}
	}
	return nil
}

func containsExt(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
