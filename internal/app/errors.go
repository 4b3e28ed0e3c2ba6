package app

import (
	"fmt"
	"net/http"
)

// Error codes served in the JSON envelope. The collection client treats
// CodeRecordNotFound as "record vanished" and every other 404 as a missing
// endpoint.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeRecordNotFound   = "RECORD_NOT_FOUND"
	CodeDuplicateEmail   = "DUPLICATE_EMAIL"
	CodeValidation       = "VALIDATION_ERROR"
	CodePlanRequired     = "PLAN_REQUIRED"
	CodePlanLimit        = "PLAN_LIMIT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func recordNotFound(collection, id string) *DomainError {
	return domainError(http.StatusNotFound, CodeRecordNotFound, "Record not found", map[string]any{
		"collection": collection,
		"id":         id,
	})
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, nil)
}
