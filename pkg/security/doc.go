// Package security holds the transport and caller security of the decision
// service: TLS with certificate hot reload and client certificate identity
// (package tls), and API key authentication (package auth). Both can name
// the tenant a request is admitted against.
package security
