package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Validation errors
// 12000-12999: Problem module errors
// 13000-13999: Submission module errors

const (
	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Timeout             ErrorCode = 10004

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	TransactionFailed ErrorCode = 10101

	// Storage errors (10200-10299)
	StorageError ErrorCode = 10200

	// Cache errors (10300-10399)
	CacheError ErrorCode = 10300

	// ========== Validation Errors (11000-11999) ==========

	ValidationFailed ErrorCode = 11000
	MissingFile      ErrorCode = 11001
	FileTooLarge     ErrorCode = 11002
	SchemaViolation  ErrorCode = 11003
	PayloadTooLarge  ErrorCode = 11004

	// ========== Problem Module Errors (12000-12999) ==========

	ProblemNotFound ErrorCode = 12000

	// ========== Submission Module Errors (13000-13999) ==========

	DuplicateSubmission    ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	SubmissionNotFound     ErrorCode = 13002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Timeout:             "Request timeout",

	DatabaseError:     "Database operation failed",
	TransactionFailed: "Database transaction failed",
	StorageError:      "Object storage operation failed",
	CacheError:        "Cache operation failed",

	ValidationFailed: "Validation failed",
	MissingFile:      "Required file is missing",
	FileTooLarge:     "File is too large",
	SchemaViolation:  "Request fields do not match the expected schema",
	PayloadTooLarge:  "Payload too large",

	ProblemNotFound: "Problem not found",

	DuplicateSubmission:    "Same submission already exists",
	SubmissionCreateFailed: "Failed to create submission",
	SubmissionNotFound:     "Submission not found",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return 200
	case FileTooLarge, PayloadTooLarge:
		return 413
	case InvalidParams, ValidationFailed, MissingFile, SchemaViolation, DuplicateSubmission:
		return 400
	case NotFound, ProblemNotFound, SubmissionNotFound:
		return 404
	default:
		return 500
	}
}
