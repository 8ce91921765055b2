package logger

import "os"

// SetupLogger installs the default logger for command line use. Records go
// to stderr so command output on stdout stays machine readable.
func SetupLogger(logLevel string, logJSON, logSource bool) {
	Init(&Config{
		Level:      ParseLevel(logLevel),
		Output:     os.Stderr,
		JSON:       logJSON,
		AddSource:  logSource,
		TimeFormat: "15:04:05",
	})
}
