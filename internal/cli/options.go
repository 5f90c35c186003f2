package cli

// Options carries the flags shared by every command.
type Options struct {
	ConfigPath string
	Debug      bool
	// LogFormat is text or json.
	LogFormat string

	// SessionID enables persistence of the Host dictionary under that id.
	SessionID string
	// Store overrides the store kind of the configuration file.
	Store string
	// Fresh discards the saved dictionary before starting.
	Fresh bool
	// Context is a JSON object merged into the Host dictionary at start.
	Context string
}

// RunOptions configures the run command.
type RunOptions struct {
	Options

	// Script is a file whose cells are executed in order instead of the REPL.
	Script      string
	JSON        bool
	Headless    bool
	StopOnError bool
}
