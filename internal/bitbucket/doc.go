// Package bitbucket implements the remote repository API consumed by the workflow
// engine on top of the Bitbucket Cloud 2.0 REST API. HTTP statuses are mapped onto
// the workflow error taxonomy per operation.
package bitbucket
