/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttleconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyConfig_Validate(t *testing.T) {
	for _, cfg := range []KeyConfig{
		{},
		{Type: KeyTypeIdentity},
		{Type: KeyTypeRemoteAddr},
		{Type: KeyTypeHeader, HeaderName: "X-Tenant-ID"},
	} {
		require.NoError(t, cfg.Validate(), "type %q", cfg.Type)
	}

	require.EqualError(t, (&KeyConfig{Type: KeyTypeHeader}).Validate(),
		`header name should be specified for "header" key type`)
	require.EqualError(t, (&KeyConfig{Type: "cookie"}).Validate(), `unknown key type "cookie"`)
}
