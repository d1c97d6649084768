// Package api defines the JSON bodies exchanged with the decision service.
//
// Every error, whatever the status code, is written as an ErrorResponse so
// clients can decode failures with one type.
package api
