package apperr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mattn/go-sqlite3"
)

// Classify reduces any failure to exactly one *Error. It never fails and has
// no side effects. Collaborators should return typed errors themselves; this
// is the adapter for what slips through untyped.
func Classify(v any) *Error {
	switch x := v.(type) {
	case nil:
		return NewInternal("", nil).WithMeta("cause", "nil failure")
	case *Error:
		if x == nil {
			return NewInternal("", nil)
		}
		return x
	case string:
		return NewInternal("", errors.New(x)).WithMeta("cause", x)
	case error:
		return classifyError(x)
	default:
		cause := fmt.Sprintf("%v", x)
		return NewInternal("", errors.New(cause)).WithMeta("cause", cause)
	}
}

func classifyError(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed
	}

	switch {
	case isConnectionFailure(err):
		return NewDatabase("", err)
	case isValidationFailure(err):
		return newError(KindValidation, validationMessage(err), err)
	case isTokenFailure(err):
		return newError(KindAuth, tokenMessage(err), err)
	}

	return NewInternal("", err).WithMeta("cause", err.Error())
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrNotADB:
			return true
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isValidationFailure(err error) bool {
	var (
		validationErrs validator.ValidationErrors
		invalidErr     *validator.InvalidValidationError
		syntaxErr      *json.SyntaxError
		typeErr        *json.UnmarshalTypeError
	)
	return errors.As(err, &validationErrs) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr)
}

func validationMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed on %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
	return "invalid request body"
}

func isTokenFailure(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired) ||
		errors.Is(err, jwt.ErrTokenSignatureInvalid) ||
		errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwt.ErrTokenNotValidYet) ||
		errors.Is(err, jwt.ErrTokenUnverifiable) ||
		errors.Is(err, jwt.ErrTokenInvalidClaims)
}

func tokenMessage(err error) string {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "token expired"
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return "invalid token signature"
	}
	return "invalid token"
}
