/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttleconfig

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// RateLimitValue is Count requests per Duration. Its text form is "N/unit", where unit is
// "s", "m", "h" or any positive duration ("5/15m" is five requests per fifteen minutes).
// The zero value is written as an empty string.
type RateLimitValue struct {
	Count    int
	Duration time.Duration
}

var rateUnits = []struct {
	suffix string
	dur    time.Duration
}{
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
}

// ParseRateLimitValue parses the text form of RateLimitValue.
func ParseRateLimitValue(rate string) (RateLimitValue, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return RateLimitValue{}, nil
	}
	formatErr := fmt.Errorf(
		"incorrect format for rate %q, should be N/(s|m|h|<duration>), for example 10/s, 100/m, 5/15m", rate)

	countStr, unit, ok := strings.Cut(rate, "/")
	if !ok {
		return RateLimitValue{}, formatErr
	}
	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil || count <= 0 {
		return RateLimitValue{}, formatErr
	}
	unit = strings.ToLower(strings.TrimSpace(unit))
	for _, u := range rateUnits {
		if unit == u.suffix {
			return RateLimitValue{Count: count, Duration: u.dur}, nil
		}
	}
	dur, err := time.ParseDuration(unit)
	if err != nil || dur <= 0 {
		return RateLimitValue{}, formatErr
	}
	return RateLimitValue{Count: count, Duration: dur}, nil
}

// String returns the text form, e.g. "100/m" or "5/15m".
func (rl RateLimitValue) String() string {
	if rl == (RateLimitValue{}) {
		return ""
	}
	for _, u := range rateUnits {
		if rl.Duration == u.dur {
			return strconv.Itoa(rl.Count) + "/" + u.suffix
		}
	}
	unit := rl.Duration.String()
	// 15m0s -> 15m, 2h0m0s -> 2h
	for _, zeroTail := range []string{"m0s", "h0m"} {
		if strings.HasSuffix(unit, zeroTail) {
			unit = unit[:len(unit)-2]
		}
	}
	return strconv.Itoa(rl.Count) + "/" + unit
}

func (rl *RateLimitValue) UnmarshalText(text []byte) (err error) {
	*rl, err = ParseRateLimitValue(string(text))
	return err
}

func (rl *RateLimitValue) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return rl.UnmarshalText([]byte(text))
}

func (rl *RateLimitValue) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	return rl.UnmarshalText([]byte(text))
}

func (rl RateLimitValue) MarshalText() ([]byte, error) { return []byte(rl.String()), nil }

func (rl RateLimitValue) MarshalJSON() ([]byte, error) { return json.Marshal(rl.String()) }

func (rl RateLimitValue) MarshalYAML() (interface{}, error) { return rl.String(), nil }

// MapstructureDecodeHook decodes durations and text-unmarshalable types (RateLimitValue, config.BytesCount)
// and trims spaces around strings.
func MapstructureDecodeHook() mapstructure.DecodeHookFunc {
	trimSpace := func(f reflect.Kind, t reflect.Kind, data interface{}) (interface{}, error) {
		if s, ok := data.(string); ok && f == reflect.String && t == reflect.String {
			return strings.TrimSpace(s), nil
		}
		return data, nil
	}
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		trimSpace,
	)
}
