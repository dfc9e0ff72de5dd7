/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIError represents a standardized error response.
// This ensures consistent error message formatting across all API endpoints.
type APIError struct {
	Error             string `json:"error"`
	Code              string `json:"code,omitempty"`
	Details           string `json:"details,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// RespondBadRequest sends a 400 Bad Request response.
// Use this for client errors like malformed JSON or invalid parameters.
func RespondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIError{
		Error: message,
		Code:  "BAD_REQUEST",
	})
}

// RespondBadRequestWithDetails sends a 400 Bad Request with additional details.
func RespondBadRequestWithDetails(c *gin.Context, message, details string) {
	c.JSON(http.StatusBadRequest, APIError{
		Error:   message,
		Code:    "BAD_REQUEST",
		Details: details,
	})
}

// RespondUnauthorized sends a 401 Unauthorized response. The message is the
// same for every authentication failure mode so verification internals are
// not leaked to the caller.
func RespondUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, APIError{
		Error: "user not authenticated",
		Code:  "UNAUTHORIZED",
	})
}

// RespondNotFound sends a 404 Not Found response with a standardized message.
func RespondNotFound(c *gin.Context, resourceType, resourceName string) {
	c.JSON(http.StatusNotFound, APIError{
		Error: fmt.Sprintf("%s not found: %s", resourceType, resourceName),
		Code:  "NOT_FOUND",
	})
}

// RespondConflict sends a 409 Conflict response.
// Use this when the request conflicts with current state (e.g., duplicate email).
func RespondConflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, APIError{
		Error: message,
		Code:  "CONFLICT",
	})
}

// RespondTooManyRequests sends a 429 response carrying a retry-after hint in
// both the JSON body and the standard Retry-After header.
func RespondTooManyRequests(c *gin.Context, retryAfterSeconds int) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	c.JSON(http.StatusTooManyRequests, APIError{
		Error:             "too many requests, please try again later",
		Code:              "RATE_LIMITED",
		RetryAfterSeconds: retryAfterSeconds,
	})
}

// RespondInternalError sends a 500 Internal Server Error response.
// It logs the error with full details but returns a sanitized message to the client.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	c.JSON(http.StatusInternalServerError, APIError{
		Error: fmt.Sprintf("failed to %s", operation),
		Code:  "INTERNAL_ERROR",
	})
}

// RespondInternalErrorSimple sends a 500 response with a simple message.
// Use this when you've already logged the error or don't need detailed logging.
func RespondInternalErrorSimple(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, APIError{
		Error: message,
		Code:  "INTERNAL_ERROR",
	})
}

// RespondBadGateway sends a 502 Bad Gateway response.
// Useful when proxying upstream services.
func RespondBadGateway(c *gin.Context, message string) {
	if message == "" {
		message = "bad gateway"
	}
	c.JSON(http.StatusBadGateway, APIError{
		Error: message,
		Code:  "BAD_GATEWAY",
	})
}

// RespondOK sends a 200 OK response with the given data.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with the given data.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}
