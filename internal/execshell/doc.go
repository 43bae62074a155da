// Package execshell provides structured helpers for invoking external tools.
//
// ShellExecutor wraps a CommandRunner with zap logging and typed failures;
// OSCommandRunner is the os/exec backed runner used outside of tests. The git
// revision adapter runs every git invocation through this package.
package execshell
