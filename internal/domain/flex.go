package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt is an int that tolerates the way browser forms serialize numbers:
// a plain JSON number, a numeric string, an empty string, or null. Empty
// string and null both decode to 0 rather than being rejected.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	v, err := flexParse(data)
	if err != nil {
		return err
	}
	*f = FlexInt(v)
	return nil
}

func (f FlexInt) Int() int {
	return int(f)
}

// FlexInt64 is FlexInt for monetary amounts stored as integer cents.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	v, err := flexParse(data)
	if err != nil {
		return err
	}
	*f = FlexInt64(v)
	return nil
}

func (f FlexInt64) Int64() int64 {
	return int64(f)
}

func flexParse(data []byte) (int64, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return 0, nil
	}

	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return 0, err
		}
		str = strings.TrimSpace(str)
		if str == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric value %q", str)
		}
		return int64(parsed), nil
	}

	var parsed float64
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, err
	}
	return int64(parsed), nil
}
