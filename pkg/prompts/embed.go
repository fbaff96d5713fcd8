package prompts

import (
	"embed"
	"io/fs"
)

//go:embed templates
var embedded embed.FS

// DefaultFS returns the prompt templates compiled into the binary
func DefaultFS() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		// embed layout is fixed at compile time
		panic(err)
	}
	return sub
}
