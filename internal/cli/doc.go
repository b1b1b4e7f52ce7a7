// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates CLI flags into the application's internal configuration.
//
// Exit codes: 0 when every test case passed, 1 for test failures and
// aborted runs, 2 for usage errors.
package cli
