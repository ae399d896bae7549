package core

// error_messages.go holds the two error catalogs of the pipeline.
//
// # Finding Codes
//
// FindingCodes is the source of the error_messages table. Each code carries a
// curator-facing message and a severity. ERROR rows never reach the silver
// zone; WARNING rows reach it unless strict mode is on.
//
//	not_nullable            ERROR    Required value is missing
//	invalid_type            ERROR    Value does not match the column type
//	future_discovery_date   ERROR    Discovery date is in the future
//	Inconsistent_field_data ERROR    Field type or discovery date differs within the field
//	polygon_incomplete      ERROR    X, Y and CRS must be provided together
//	polygon_not_closed      WARNING  First and last polygon coordinates differ
//	field_already_exists    WARNING  Field already exists in the catalog
//	field_lookup_failed     WARNING  Field catalog lookup failed
//	crs_not_found           WARNING  CRS could not be resolved
//	crs_conversion_error    WARNING  Coordinates could not be converted
//	parent_field_not_found  WARNING  Parent field could not be resolved
//
// Column-scoped codes ("invalid_type:X") resolve through their base code.
//
// # Operational Errors
//
// MapError converts technical errors raised while serving curators into
// user messages with a support code:
//
//	DB001-DB004    Database errors (connection, timeout, constraint)
//	FILE001-FILE003 File errors (missing, unreadable, malformed)
//	REF001-REF002  Reference-data service errors
//	SCH001         Schema registry errors
//	PIPE001-PIPE002 Lifecycle errors
//	ERR000         Anything else; check the logs for the original error

import (
	"fmt"
	"strings"
)

// Finding codes emitted by the pipeline.
const (
	CodeFutureDiscoveryDate = "future_discovery_date"
	CodeInconsistentField   = "Inconsistent_field_data"
	CodePolygonIncomplete   = "polygon_incomplete"
	CodePolygonNotClosed    = "polygon_not_closed"
	CodeFieldAlreadyExists  = "field_already_exists"
	CodeFieldLookupFailed   = "field_lookup_failed"
	CodeCRSNotFound         = "crs_not_found"
	CodeCRSConversionError  = "crs_conversion_error"
	CodeParentFieldNotFound = "parent_field_not_found"
)

// CodeInfo is the catalog entry of a finding code.
type CodeInfo struct {
	Message  string
	Severity Severity
}

// FindingCodes is the finding-code catalog seeded into error_messages.
var FindingCodes = map[string]CodeInfo{
	CodeNotNullable:         {"Required value is missing", SeverityError},
	CodeInvalidType:         {"Value does not match the column type", SeverityError},
	CodeFutureDiscoveryDate: {"Discovery date is in the future", SeverityError},
	CodeInconsistentField:   {"Field type or discovery date differs within the field", SeverityError},
	CodePolygonIncomplete:   {"X, Y and CRS must be provided together", SeverityWarning},
	CodePolygonNotClosed:    {"First and last polygon coordinates differ", SeverityWarning},
	CodeFieldAlreadyExists:  {"Field already exists in the catalog", SeverityWarning},
	CodeFieldLookupFailed:   {"Field catalog lookup failed", SeverityWarning},
	CodeCRSNotFound:         {"CRS could not be resolved", SeverityWarning},
	CodeCRSConversionError:  {"Coordinates could not be converted", SeverityWarning},
	CodeParentFieldNotFound: {"Parent field could not be resolved", SeverityWarning},
}

// LookupCode returns the catalog entry for a code, resolving column-scoped
// codes through their base code.
func LookupCode(code string) (CodeInfo, bool) {
	info, ok := FindingCodes[BaseCode(code)]
	return info, ok
}

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern maps a lowercase substring of a technical error to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched in order; specific patterns come first.
var errorPatterns = []errorPattern{
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB001"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB002"}},
	{"duplicate key", UserMessage{"A record with this ID already exists", "Check that only one pipeline instance is running", "DB003"}},
	{"deadline exceeded", UserMessage{"Operation timed out", "Please try again later", "DB004"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB004"}},
	{"no such file", UserMessage{"Source file no longer exists", "Resubmit the file to the watched directory", "FILE001"}},
	{"permission denied", UserMessage{"Source file is not readable", "Check file permissions in the watched directory", "FILE002"}},
	{"parse csv", UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated with a header row", "FILE003"}},
	{"reference service", UserMessage{"Reference-data service request failed", "Check the reference service URL and credentials", "REF001"}},
	{"crs conversion", UserMessage{"Coordinate conversion failed", "Check the CRS values in the file", "REF002"}},
	{"schema not found", UserMessage{"Table is not registered", "Seed the schema registry for this table", "SCH001"}},
	{"invalid status transition", UserMessage{"File cannot move to that status", "Reprocess the file by resubmitting it", "PIPE001"}},
	{"file not found", UserMessage{"File record not found", "Verify the file id", "PIPE002"}},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Matching is case-insensitive and the first matching pattern wins.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats an error as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
