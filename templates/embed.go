package templates

import "embed"

// EmailFS holds the HTML bodies of outgoing account emails.
//
//go:embed email/*.html
var EmailFS embed.FS
