package languages

// RuntimeConfig is one way of building and running a source file.
// Commands are argument vectors run inside the workspace; nothing in them
// comes from the request.
type RuntimeConfig struct {
	Strategy       string
	SourceFile     string
	CompileCommand []string
	RunCommand     []string
}

type Language struct {
	ID     string
	Name   string
	Config RuntimeConfig
	// Requires names a capability Config depends on. When the probe reports it
	// missing, Fallback is used instead.
	Requires string
	Fallback *RuntimeConfig
}

// Toolchain is the resolved pipeline for one request.
type Toolchain struct {
	Language string
	RuntimeConfig
}

// Compiled reports whether the pipeline has a build stage before the run stage.
func (t Toolchain) Compiled() bool { return len(t.CompileCommand) > 0 }
