package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"example.com/devserve/internal/logger"
)

// jsonMarshalFunc allows swapping out json.Marshal for testing.
var jsonMarshalFunc = json.Marshal

// ErrorDetail is the inner object of a JSON error body.
type ErrorDetail struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

// ErrorResponseJSON is the full JSON error body.
type ErrorResponseJSON struct {
	Error ErrorDetail `json:"error"`
}

type htmlMessage struct {
	Title   string
	Heading string
	Message string
}

var defaultHTMLMessages = map[int]htmlMessage{
	http.StatusNotFound: {
		Title:   "404 Not Found",
		Heading: "Not Found",
		Message: "The requested resource was not found on this server.",
	},
	http.StatusInternalServerError: {
		Title:   "500 Internal Server Error",
		Heading: "Internal Server Error",
		Message: "The server encountered an internal error and was unable to complete your request.",
	},
	http.StatusForbidden: {
		Title:   "403 Forbidden",
		Heading: "Forbidden",
		Message: "You do not have permission to access this resource.",
	},
	http.StatusBadRequest: {
		Title:   "400 Bad Request",
		Heading: "Bad Request",
		Message: "The server cannot or will not process the request due to an apparent client error.",
	},
}

// PrefersJSON reports whether the most preferred media type in an Accept
// header is application/json. Ties on q-value go to the more specific type,
// then to the earlier one. Anything unparseable falls back to HTML.
func PrefersJSON(acceptHeaderValue string) bool {
	if acceptHeaderValue == "" {
		return false
	}

	type offer struct {
		mediaType string
		q         float64
		specific  bool
		order     int
	}
	var offers []offer

	for i, part := range strings.Split(acceptHeaderValue, ",") {
		part = strings.TrimSpace(part)
		mediaType := part
		q := 1.0
		if idx := strings.Index(part, ";"); idx != -1 {
			mediaType = strings.TrimSpace(part[:idx])
			for _, param := range strings.Split(part[idx+1:], ";") {
				param = strings.TrimSpace(param)
				if !strings.HasPrefix(param, "q=") {
					continue
				}
				parsed, err := strconv.ParseFloat(param[2:], 64)
				if err != nil || parsed < 0 || parsed > 1 {
					parsed = 0
				}
				q = parsed
				break
			}
		}
		// q=0 means "not acceptable".
		if q <= 0 || mediaType == "" {
			continue
		}
		offers = append(offers, offer{
			mediaType: strings.ToLower(mediaType),
			q:         q,
			specific:  !strings.HasSuffix(mediaType, "/*"),
			order:     i,
		})
	}
	if len(offers) == 0 {
		return false
	}

	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].q != offers[j].q {
			return offers[i].q > offers[j].q
		}
		if offers[i].specific != offers[j].specific {
			return offers[i].specific
		}
		return offers[i].order < offers[j].order
	})
	return offers[0].mediaType == "application/json"
}

// SendDefaultErrorResponse writes a server-generated error page. The body is
// JSON when the request's Accept header prefers it and HTML otherwise.
// req may be nil, in which case HTML is sent.
func SendDefaultErrorResponse(w http.ResponseWriter, statusCode int, req *http.Request, detail string, lg *logger.Logger) {
	accept := ""
	if req != nil {
		accept = req.Header.Get("Accept")
	}
	if lg != nil {
		lg.Debug("sending default error response", logger.LogFields{
			"status_code": statusCode,
			"detail":      detail,
		})
	}

	contentType, body := renderErrorBody(statusCode, accept, detail, lg)

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(statusCode)
	if req != nil && req.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil && lg != nil {
		lg.Error("failed to write error response body", logger.LogFields{
			"error":       err,
			"status_code": statusCode,
		})
	}
}

func renderErrorBody(statusCode int, accept, detail string, lg *logger.Logger) (string, []byte) {
	statusText := http.StatusText(statusCode)
	if statusText == "" {
		statusText = "Error"
	}

	if PrefersJSON(accept) {
		body, err := jsonMarshalFunc(ErrorResponseJSON{Error: ErrorDetail{
			StatusCode: statusCode,
			Message:    statusText,
			Detail:     detail,
		}})
		if err == nil {
			return "application/json; charset=utf-8", body
		}
		if lg != nil {
			lg.Error("failed to marshal JSON error response, falling back to HTML", logger.LogFields{
				"error":       err,
				"status_code": statusCode,
			})
		}
	}

	msg, known := defaultHTMLMessages[statusCode]
	if !known {
		msg = htmlMessage{
			Title:   fmt.Sprintf("%d %s", statusCode, statusText),
			Heading: statusText,
			Message: "The server encountered an error processing your request.",
		}
	}
	message := msg.Message
	if detail != "" {
		if known {
			message += " " + html.EscapeString(detail)
		} else {
			message = html.EscapeString(detail)
		}
	}
	return "text/html; charset=utf-8", GenerateHTMLResponseBody(msg.Title, msg.Heading, message)
}

// GenerateHTMLResponseBody renders a minimal error page. message is inserted
// as-is and must already be escaped.
func GenerateHTMLResponseBody(title, heading, message string) []byte {
	return []byte(fmt.Sprintf(`<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>`,
		html.EscapeString(title), html.EscapeString(heading), message))
}
