package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// officeConverter は LibreOffice を外部プロセスとして起動する Converter です。
// 外部プロセスが失敗した場合、fallback が設定されていればプロセス内変換へ
// 切り替えます。タイムアウトは呼び出し側の context で制御します。
type officeConverter struct {
	binPath   string
	targetExt string
	fallback  Converter
}

func (c *officeConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	execErr := c.runOffice(ctx, inputPath, outputPath)
	if execErr == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		// タイムアウト/キャンセルはフォールバックしても無駄なのでそのまま返す
		return execErr
	}
	if c.fallback != nil {
		fbErr := c.fallback.Convert(ctx, inputPath, outputPath)
		if fbErr == nil {
			return nil
		}
		return newError(CodeConversionFailed,
			fmt.Sprintf("外部変換もフォールバックも失敗しました: %v / %v", execErr, fbErr), execErr)
	}
	return execErr
}

func (c *officeConverter) runOffice(ctx context.Context, inputPath, outputPath string) error {
	outDir := filepath.Dir(outputPath)
	cmd := exec.CommandContext(ctx, c.binPath,
		"--headless",
		"--convert-to", c.targetExt,
		"--outdir", outDir,
		inputPath,
	)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return newError(CodeConversionFailed,
			fmt.Sprintf("外部プロセスによる変換に失敗しました: %s", strings.TrimSpace(stderr.String())), err)
	}

	// LibreOffice は入力と同じ語幹で出力するため、期待するパスへ移動する
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	produced := filepath.Join(outDir, stem+"."+c.targetExt)
	if produced != outputPath {
		if err := os.Rename(produced, outputPath); err != nil {
			return newError(CodeConversionFailed, "変換結果ファイルの配置に失敗しました。", err)
		}
	}

	if _, err := os.Stat(outputPath); err != nil {
		return newError(CodeConversionFailed, "外部プロセスが出力ファイルを生成しませんでした。", err)
	}
	return nil
}
