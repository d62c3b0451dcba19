// Package utils exposes reusable helpers consumed by the ngen command family.
//
// It houses the ConfigurationLoader and LoggerFactory abstractions that
// integrate Viper, environment variables, and zap logging for the CLIs.
package utils
