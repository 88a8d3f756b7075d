package apperror

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindState      Kind = "state"
	KindNotFound   Kind = "not_found"
	KindTransient  Kind = "transient"
	KindInternal   Kind = "internal"
)

// Error attaches a Kind and a stable code to an underlying error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil && e.Err.Error() != msg {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap attaches kind to a sentinel error, using its text as the code.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: err.Error(), Err: err}
}

func Validation(code string, err error) error {
	return &Error{Kind: KindValidation, Code: code, Err: err}
}

func State(code string, err error) error {
	return &Error{Kind: KindState, Code: code, Err: err}
}

func NotFound(code string, err error) error {
	return &Error{Kind: KindNotFound, Code: code, Err: err}
}

func Transient(code string, err error) error {
	return &Error{Kind: KindTransient, Code: code, Err: err}
}

// KindOf returns the outermost Kind attached to err, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code attached to err, if any.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FromStore classifies a raw store error. Nil stays nil and classified errors
// pass through unchanged.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("record_not_found", err)
	}
	if IsTransientStoreError(err) {
		return Transient("store_unavailable", err)
	}
	return err
}

// IsTransientStoreError reports store failures that may succeed on retry.
func IsTransientStoreError(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, KindTransient) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P01":
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
