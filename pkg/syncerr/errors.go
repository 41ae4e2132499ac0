package syncerr

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrMappingNotFound   = errors.New("source tenant mapping not found")
)

// Error is the uniform tagged error returned across service-function
// boundaries: which module failed, in what context, and when.
type Error struct {
	Module  string
	Context string
	Message string
	Time    time.Time

	err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Module, e.Context, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// New wraps err with its module and context. A nil err yields nil. An err
// that already is an *Error is returned as is so the innermost tag survives.
func New(module, context string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{
		Module:  module,
		Context: context,
		Message: err.Error(),
		Time:    time.Now().UTC(),
		err:     err,
	}
}

func Newf(module, context, format string, args ...any) error {
	return New(module, context, fmt.Errorf(format, args...))
}

// Fields renders the tags as zap fields.
func Fields(err error) []zap.Field {
	var tagged *Error
	if !errors.As(err, &tagged) {
		return []zap.Field{zap.Error(err)}
	}
	return []zap.Field{
		zap.String("module", tagged.Module),
		zap.String("context", tagged.Context),
		zap.String("message", tagged.Message),
		zap.Time("time", tagged.Time),
	}
}

// Log wraps err, logs it as an error and returns the wrapped value.
func Log(logger *zap.Logger, module, context string, err error) error {
	err = New(module, context, err)
	if err != nil {
		logger.Error("operation failed", Fields(err)...)
	}
	return err
}
