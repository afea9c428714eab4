package convert

import "fmt"

// エラーコード一覧。HTTP層でステータスコードへ対応付けられます。
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeJobNotFound      = "JOB_NOT_FOUND"
	CodeNotReady         = "NOT_READY"
	CodeFileMissing      = "FILE_MISSING"
	CodeConversionFailed = "CONVERSION_FAILED"
)

// Error はクライアントへ返却可能な変換エラーを表します。
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}
