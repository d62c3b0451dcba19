// Package dispatch implements the ngenctl command dispatcher: user-defined aliases
// stored as JSON, discovery of ngenctl-<command> scripts on well-known paths, and
// script execution with exit code passthrough.
package dispatch
