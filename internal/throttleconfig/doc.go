/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttleconfig provides text configuration types shared by the rate limiter
// and the HTTP middleware: rate values like "100/m" or "5/15m" and request key sources.
package throttleconfig
