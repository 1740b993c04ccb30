/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttleconfig

import "fmt"

// KeyType is a source of the key that identifies a caller.
type KeyType string

// Key types.
const (
	KeyTypeIdentity   KeyType = "identity"
	KeyTypeHeader     KeyType = "header"
	KeyTypeRemoteAddr KeyType = "remote_addr"
)

// KeyConfig selects how the caller key is built for a request.
type KeyConfig struct {
	// Type is KeyTypeIdentity by default: the authenticated user, or the remote address for anonymous callers.
	Type KeyType `mapstructure:"type" yaml:"type" json:"type"`

	// HeaderName is used with KeyTypeHeader.
	HeaderName string `mapstructure:"headerName" yaml:"headerName" json:"headerName"`
}

// Validate checks that the key type is known and has everything it needs.
func (c *KeyConfig) Validate() error {
	switch c.Type {
	case "", KeyTypeIdentity, KeyTypeRemoteAddr:
		return nil
	case KeyTypeHeader:
		if c.HeaderName != "" {
			return nil
		}
		return fmt.Errorf("header name should be specified for %q key type", KeyTypeHeader)
	}
	return fmt.Errorf("unknown key type %q", c.Type)
}
