package logging

// LogEntry represents a structured log record with fields particularly
// relevant to search and refinement runs.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Run-specific fields
	RunID     string // The reasoning run this entry belongs to
	Iteration int    // Refinement iteration, if applicable
	Depth     int    // Search depth, if applicable

	// General structured data
	Fields map[string]interface{}
}
