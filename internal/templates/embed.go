// Package templates renders starter files from embedded templates with
// override support.
package templates

import "embed"

//go:embed config/*.tmpl
var embeddedFS embed.FS
