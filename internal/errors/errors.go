package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrMedicationNotFound = &AppError{Code: "MED_001", Message: "medication not found"}
	ErrMedicationInvalid  = &AppError{Code: "MED_002", Message: "invalid medication"}

	ErrInvalidDoseStatus = &AppError{Code: "DOSE_001", Message: "invalid dose status"}
	ErrUndoExpired       = &AppError{Code: "DOSE_002", Message: "undo window expired"}

	ErrInvalidRefillQuantity = &AppError{Code: "REFILL_001", Message: "refill quantity must be a non-negative number"}

	ErrPRNNotConfigured = &AppError{Code: "PRN_001", Message: "medication has no as-needed configuration"}
	ErrPRNTooSoon       = &AppError{Code: "PRN_002", Message: "minimum interval between doses not met"}
	ErrPRNDailyLimit    = &AppError{Code: "PRN_003", Message: "daily dose limit reached"}

	ErrAdvisoryUnavailable = &AppError{Code: "ADVISORY_001", Message: "interaction advisory unavailable"}
	ErrAdvisoryMalformed   = &AppError{Code: "ADVISORY_002", Message: "malformed advisory response"}

	ErrSnapshotWrite = &AppError{Code: "STORE_001", Message: "snapshot write failed"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
