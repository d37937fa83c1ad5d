// Package web embeds the pages served by the CLI loopback listener.
package web

import _ "embed"

// CallbackPage relays the provider redirect (query and fragment) back to the
// loopback listener that served it.
//
//go:embed callback.html
var CallbackPage []byte
