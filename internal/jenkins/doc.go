// Package jenkins provides a minimal Jenkins REST API client and user-level
// credential persistence for the ngen-j command line tool.
package jenkins
