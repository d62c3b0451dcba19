// Package credentials resolves the remote account triple used by ngen-gitops.
//
// Resolution order is explicit arguments, then environment variables, then the
// loaded configuration file. The workflow engine consumes the resolved triple;
// it never reads the environment on its own.
package credentials
