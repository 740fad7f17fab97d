package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxErrorMessageLength caps client-visible error text
const maxErrorMessageLength = 256

// sanitizeErrorMessage removes sensitive information from error messages before sending to clients
func sanitizeErrorMessage(message string) string {
	// Remove database connection strings (mongodb://, redis://, etc.)
	message = regexp.MustCompile(`(?:mongodb|mysql|postgres|postgresql|sqlite|redis)://[^\s"']+`).ReplaceAllString(message, "[DATABASE_CONNECTION]")

	// Remove file paths (both Unix and Windows style, with or without extension)
	// Matches paths like /etc/passwd, C:\Windows\System32\file.dll, /var/log/app.log
	message = regexp.MustCompile(`(?:[A-Za-z]:\\|/)(?:[^\\/:*?"<>|\s]+[\\/ ])*[^\\/:*?"<>|\s]+`).ReplaceAllString(message, "[FILE_PATH]")

	// Only redact PRIVATE IP addresses (RFC 1918, localhost); public IPs stay
	// visible for debugging external service issues
	message = regexp.MustCompile(`\b(?:10|127)(?:\.\d{1,3}){3}(?::\d{1,5})?\b`).ReplaceAllString(message, "[PRIVATE_IP]")
	message = regexp.MustCompile(`\b172\.(?:1[6-9]|2[0-9]|3[01])(?:\.\d{1,3}){2}(?::\d{1,5})?\b`).ReplaceAllString(message, "[PRIVATE_IP]")
	message = regexp.MustCompile(`\b192\.168(?:\.\d{1,3}){2}(?::\d{1,5})?\b`).ReplaceAllString(message, "[PRIVATE_IP]")

	// Remove credentials and secrets, keeping the key name for context
	message = regexp.MustCompile(`(?i)(password|secret|token|key|credential|auth)[:=]\s*["']?[^"'\s]+["']?`).ReplaceAllString(message, "$1=[REDACTED]")

	// Remove stack traces and panic information
	message = regexp.MustCompile(`(?m)^goroutine \d+.*$`).ReplaceAllString(message, "[STACK_TRACE]")
	message = regexp.MustCompile(`(?m)^\s+at\s+.*:\d+.*$`).ReplaceAllString(message, "")

	// Remove MongoDB-specific error details that might contain sensitive info
	message = regexp.MustCompile(`\((?:ServerSelectionError|MongoError)[^\)]*\)`).ReplaceAllString(message, "[DATABASE_ERROR]")

	// Limit message length to prevent information disclosure through verbose errors
	if len(message) > maxErrorMessageLength {
		message = message[:maxErrorMessageLength-3] + "..."
	}

	return message
}

// writeError logs the full error internally and sends the client a sanitized
// error body in the shape every non-2xx response uses: {"detail": message}
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	// Log the FULL error internally (unsanitized for debugging)
	if err != nil && logger != nil {
		logger.Errorw(message,
			"error", err.Error(),
			"status_code", statusCode,
		)
	} else if logger != nil {
		logger.Errorw(message,
			"status_code", statusCode,
		)
	}

	writeDetail(w, statusCode, sanitizeErrorMessage(message), logger)
}

// writeDetail writes {"detail": message} without logging. Handlers use it for
// expected failures (404s, empty updates) where the message is the whole story.
func writeDetail(w http.ResponseWriter, statusCode int, detail string, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"detail": detail}); err != nil && logger != nil {
		logger.Errorw("Failed to encode error response", "error", err)
	}
}

// writeValidationError responds 422 with a stable detail string plus per-field
// messages the dashboard can surface inline
func (a *API) writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	errs := make([]string, 0, 1)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("field '%s' failed validation on '%s'", fe.Field(), fe.Tag()))
		}
	} else if err != nil {
		errs = append(errs, err.Error())
	}

	a.logger.Warnw("Validation error",
		"client_ip", getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks),
		"path", r.URL.Path,
		"errors", errs)

	a.respondJSON(w, map[string]interface{}{
		"detail": "Invalid input data",
		"errors": errs,
	}, http.StatusUnprocessableEntity)
}

// decodeJSONBodyWithLimit decodes a JSON request body with a size limit.
// strict rejects unknown fields; chart payloads stay tolerant because Plotly
// trace schemas grow faster than this service revs.
func (a *API) decodeJSONBodyWithLimit(w http.ResponseWriter, r *http.Request, dst interface{}, maxBytes int64, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	if strict {
		decoder.DisallowUnknownFields()
	}

	err := decoder.Decode(dst)
	if err != nil {
		// SECURITY: Provide more detailed error messages for debugging while maintaining security
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError

		switch {
		case errors.As(err, &syntaxError):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON syntax at byte offset %d", syntaxError.Offset), err, a.logger)
		case errors.As(err, &unmarshalTypeError):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid type for field '%s': expected %s, got %s", unmarshalTypeError.Field, unmarshalTypeError.Type, unmarshalTypeError.Value), err, a.logger)
		case strings.Contains(err.Error(), "unknown field"):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("JSON contains %s", err.Error()), err, a.logger)
		case err.Error() == "http: request body too large":
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", err, a.logger)
		default:
			writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		}
		return err
	}

	return nil
}

// parseItemID extracts and validates the item_id path variable. On failure it
// writes the 422 contract and returns false.
func (a *API) parseItemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := mux.Vars(r)["item_id"]
	itemID, err := strconv.Atoi(idStr)
	if err != nil {
		a.writeValidationError(w, r, fmt.Errorf("item_id must be an integer"))
		return 0, false
	}
	return itemID, true
}

// sanitizeLogMessage removes sensitive information from log messages
func sanitizeLogMessage(message string) string {
	// SECURITY: Prevent log injection. Remove newlines and carriage returns so
	// client-controlled values cannot forge log entries.
	message = strings.ReplaceAll(message, "\n", "\\n")
	message = strings.ReplaceAll(message, "\r", "\\r")
	message = strings.ReplaceAll(message, "\t", "\\t")

	// Remove all other ASCII control characters (0x00-0x1F and 0x7F)
	message = regexp.MustCompile(`[\x00-\x1F\x7F]`).ReplaceAllString(message, "")

	// Remove passwords
	message = regexp.MustCompile(`(?i)password[:=]\s*["']?[^"'\s]+["']?`).ReplaceAllString(message, "password=[REDACTED]")
	// Remove tokens
	message = regexp.MustCompile(`(?i)token[:=]\s*["']?[^"'\s]+["']?`).ReplaceAllString(message, "token=[REDACTED]")
	// Remove API keys
	message = regexp.MustCompile(`(?i)(api[_-]?key|secret|credential)[:=]\s*["']?[^"'\s]+["']?`).ReplaceAllString(message, "$1=[REDACTED]")
	// Remove connection strings
	message = regexp.MustCompile(`(?:mongodb|mysql|postgres|postgresql|sqlite|redis)://[^\s"']+`).ReplaceAllString(message, "[DB_CONNECTION]")

	return message
}
