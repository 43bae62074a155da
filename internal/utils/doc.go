// Package utils exposes reusable helpers consumed by the command-line entrypoint and commands.
//
// ConfigurationLoader layers embedded defaults, configuration files and
// environment variables through Viper. LoggerFactory builds zap loggers
// writing to standard error. CommandContextAccessor carries invocation
// metadata through command contexts.
package utils
