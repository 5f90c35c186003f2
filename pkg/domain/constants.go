package domain

const (
	// HostEngine is the name of the native engine that owns the Host dictionary.
	HostEngine = "Host"

	// DefaultExchangePrefix selects the Host variables sent to an engine when no names are given.
	DefaultExchangePrefix = "sos"

	// StreamStdout and StreamStderr name the two output streams.
	StreamStdout = "stdout"
	StreamStderr = "stderr"

	// MIMEText is the plain text representation of a display bundle.
	MIMEText = "text/plain"
	// MIMEMarkdown is the markdown representation of a display bundle.
	MIMEMarkdown = "text/markdown"
	// MIMEJSON is the JSON representation of a display bundle.
	MIMEJSON = "application/json"
)
