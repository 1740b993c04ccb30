/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import "reflect"

// Config is a section of configuration that may be loaded by Loader.
type Config interface {
	// SetProviderDefaults registers default values, so they are visible to environment overrides.
	SetProviderDefaults(dp DataProvider)
	// Set reads and validates values.
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by sections mounted under a key ("cache", "rateLimit").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// dataProviderFor returns the provider the section should read from.
func dataProviderFor(cfg Config, dp DataProvider) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}

// nestedConfigs returns initialized exported fields of the struct pointed by obj that implement Config.
func nestedConfigs(obj interface{}) []Config {
	el := reflect.ValueOf(obj).Elem()
	var result []Config
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		field := el.Field(i)
		if field.Kind() == reflect.Ptr && field.IsNil() {
			continue
		}
		if c, ok := field.Interface().(Config); ok {
			result = append(result, c)
		}
	}
	return result
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults for every initialized (non-nil) field
// of the struct pointed by obj that implements Config. It lets an aggregate config delegate to its sections.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	for _, c := range nestedConfigs(obj) {
		c.SetProviderDefaults(dataProviderFor(c, dp))
	}
}

// CallSetForFields calls Set for every initialized (non-nil) field of the struct pointed by obj
// that implements Config and stops at the first error.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	for _, c := range nestedConfigs(obj) {
		if err := c.Set(dataProviderFor(c, dp)); err != nil {
			return err
		}
	}
	return nil
}
