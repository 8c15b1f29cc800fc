package httpErrors

import (
	"errors"
	"net/http"

	dErrors "trustdoc/pkg/domain-errors"
)

// ToHTTPStatus maps a domain error code onto an HTTP status so handlers stay
// free of case-by-case status logic.
func ToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeDuplicateActiveImport, dErrors.CodeInvalidTransition:
		return http.StatusConflict
	case dErrors.CodeImportSourceUnreadable:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor resolves the HTTP status for any error, defaulting to 500 when the
// error carries no domain code.
func StatusFor(err error) (int, dErrors.Code) {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return ToHTTPStatus(de.Code), de.Code
	}
	return http.StatusInternalServerError, dErrors.CodeInternal
}
