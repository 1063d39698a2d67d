package fileapi

// ToolchainsDocument mirrors the toolchains v1 reply.
type ToolchainsDocument struct {
	Toolchains []ToolchainEntry `json:"toolchains"`
}

// ToolchainEntry is one (language, compiler) pair known to the build.
type ToolchainEntry struct {
	Language string       `json:"language"`
	Compiler CompilerInfo `json:"compiler"`
}

// CompilerInfo describes the compiler of a toolchain entry.
type CompilerInfo struct {
	Path     string       `json:"path"`
	ID       string       `json:"id"`
	Version  string       `json:"version"`
	Implicit ImplicitInfo `json:"implicit"`
}

// ImplicitInfo carries the search paths the build system already probed from
// the compiler.
type ImplicitInfo struct {
	IncludeDirectories []string `json:"includeDirectories"`
}

// LoadToolchains parses the toolchains document referenced by the reply index.
func LoadToolchains(index *ReplyIndex) (*ToolchainsDocument, error) {
	var doc ToolchainsDocument
	if err := readJSON(index.ToolchainsPath, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
