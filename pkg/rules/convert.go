package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// toString renders an expression result as response text. Composite values
// become JSON; everything else uses its natural text form.
func toString(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cannot encode %T: %w", v, err)
		}
		return string(data), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// maxSeconds is the largest number of seconds a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

// toDuration accepts a number of seconds, a Go duration string or a
// time.Duration. Negative durations are rejected.
func toDuration(v any) (time.Duration, error) {
	var d time.Duration
	switch v := v.(type) {
	case time.Duration:
		d = v
	case int:
		return secondsToDuration(float64(v))
	case int64:
		return secondsToDuration(float64(v))
	case float64:
		return secondsToDuration(v)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			secs, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			return secondsToDuration(secs)
		}
		d = parsed
	default:
		return 0, fmt.Errorf("invalid duration of type %T", v)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

func secondsToDuration(secs float64) (time.Duration, error) {
	switch {
	case math.IsNaN(secs):
		return 0, errors.New("invalid duration NaN")
	case secs < 0:
		return 0, fmt.Errorf("negative duration %vs", secs)
	case secs > maxSeconds:
		return 0, fmt.Errorf("duration %vs out of range", secs)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
