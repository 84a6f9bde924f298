package predictions

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/pallor/internal/pipeline"
)

// Domain errors for prediction requests.
var (
	ErrMissingFilename = errors.New("missing filename")
	ErrUnsupportedType = errors.New("file type not supported")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUploadFailed    = errors.New("failed to upload file")
	ErrPublishFailed   = errors.New("failed to publish result artifact")
)

// Client-facing messages. Internal detail stays in the logs.
const (
	MessageMissingFilename = "Missing filename"
	MessageUnsupportedType = "File type not supported. Allowed: jpg, jpeg, png, webp"
	MessageInvalidFileType = "Invalid file type"
	MessageFileTooLarge    = "File too large. Maximum size: "
	MessageUploadFailed    = "Failed to upload file"
	MessageInvalidImage    = "Invalid image or processing failed"
	MessageProcessing      = "Unable to process image. Please try again."
)

// MapHTTPStatus maps prediction errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMissingFilename),
		errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrInvalidFileType),
		errors.Is(err, ErrUploadFailed),
		pipeline.IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage returns the response text for err. maxSize is the formatted
// upload limit quoted by the too-large message.
func ClientMessage(err error, maxSize string) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return MessageFileTooLarge + maxSize
	case errors.Is(err, ErrMissingFilename):
		return MessageMissingFilename
	case errors.Is(err, ErrUnsupportedType):
		return MessageUnsupportedType
	case errors.Is(err, ErrInvalidFileType):
		return MessageInvalidFileType
	case errors.Is(err, ErrUploadFailed):
		return MessageUploadFailed
	case pipeline.IsInvalidInput(err):
		return MessageInvalidImage
	default:
		return MessageProcessing
	}
}
