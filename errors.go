package letterpdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/encode"
)

// Sentinel errors for export failure conditions.
var (
	ErrExportInProgress = errors.New("letterpdf: export already in progress for this letter")
	ErrOffline          = errors.New("letterpdf: origin unreachable")
	ErrNotFound         = errors.New("letterpdf: letter not found")
	ErrNotFinalized     = errors.New("letterpdf: only finalized letters can be archived")
	ErrNoArchive        = errors.New("letterpdf: archive storage not configured")
	ErrStore            = errors.New("letterpdf: letter store unavailable")
)

// Kind classifies an export failure for the user.
type Kind string

const (
	KindConcurrency  Kind = "concurrency"
	KindConnectivity Kind = "connectivity"
	KindAssetLoad    Kind = "asset_load"
	KindTimeout      Kind = "timeout"
	KindCanceled     Kind = "canceled"
	KindEncoding     Kind = "encoding"
	KindRender       Kind = "render"
	KindNotFound     Kind = "not_found"
	KindStore        Kind = "store"
)

var userMessages = map[Kind]string{
	KindConcurrency:  "جاري تصدير هذا الخطاب بالفعل، يرجى الانتظار",
	KindConnectivity: "لا يوجد اتصال بالإنترنت، يرجى التحقق من الاتصال والمحاولة مرة أخرى",
	KindAssetLoad:    "تعذر تحميل الصور المطلوبة للخطاب",
	KindTimeout:      "انتهت مهلة تصدير الخطاب، يرجى المحاولة مرة أخرى",
	KindCanceled:     "تم إلغاء تصدير الخطاب",
	KindEncoding:     "تعذر إنشاء ملف PDF",
	KindRender:       "تعذر تحويل الخطاب إلى صورة",
	KindNotFound:     "الخطاب غير موجود",
	KindStore:        "تعذر الوصول إلى بيانات الخطاب، يرجى المحاولة لاحقاً",
}

// ExportError is the single error type returned by Exporter methods.
type ExportError struct {
	Kind     Kind
	LetterID string
	Op       string // pipeline step, e.g. "probe", "preload", "rasterize"
	Err      error
}

func (e *ExportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("letterpdf.%s: letter %s: %v", e.Op, e.LetterID, e.Err)
	}
	return fmt.Sprintf("letterpdf.%s: letter %s: %s", e.Op, e.LetterID, e.Kind)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// UserMessage returns the Arabic message shown to the user.
func (e *ExportError) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindRender]
}

// KindOf returns the kind of err, or "" when err is not an *ExportError.
func KindOf(err error) Kind {
	var e *ExportError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// newExportError classifies err raised at op. Context errors and the typed
// errors of the pipeline packages win over the step's default kind.
func newExportError(letterID, op string, def Kind, err error) *ExportError {
	var e *ExportError
	if errors.As(err, &e) {
		return e
	}
	kind := def
	var loadErr *assets.LoadError
	var encErr *encode.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.Is(err, ErrExportInProgress):
		kind = KindConcurrency
	case errors.Is(err, ErrOffline):
		kind = KindConnectivity
	case errors.Is(err, ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, ErrStore):
		kind = KindStore
	case errors.As(err, &loadErr):
		kind = KindAssetLoad
	case errors.As(err, &encErr), errors.Is(err, encode.ErrNoImage):
		kind = KindEncoding
	}
	return &ExportError{Kind: kind, LetterID: letterID, Op: op, Err: err}
}
