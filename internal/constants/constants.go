// Package constants holds fixed presentation settings shared across
// commands.
package constants

// SyntaxTheme is the Chroma theme used when `replay` renders fenced code
// blocks from assistant messages. Any theme name chroma ships works here;
// github-dark keeps output readable on the dark terminals this tool is
// usually run in.
const SyntaxTheme = "github-dark"
