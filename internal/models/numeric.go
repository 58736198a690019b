package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FlexFloat принимает из JSON как число, так и строку с числом.
// Сервис маршрутизации может сериализовать числовые поля строками.
type FlexFloat float64

// UnmarshalJSON реализует json.Unmarshaler
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	v, err := parseFlexNumber(data)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// MarshalJSON всегда пишет число
func (f FlexFloat) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(f))
}

// Float64 возвращает значение как float64
func (f FlexFloat) Float64() float64 {
	return float64(f)
}

// FlexInt принимает из JSON целое число или строку с целым числом
type FlexInt int

// UnmarshalJSON реализует json.Unmarshaler
func (i *FlexInt) UnmarshalJSON(data []byte) error {
	v, err := parseFlexNumber(data)
	if err != nil {
		return err
	}
	if v != math.Trunc(v) {
		return fmt.Errorf("value %v is not an integer", v)
	}
	*i = FlexInt(v)
	return nil
}

// MarshalJSON всегда пишет число
func (i FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(i))
}

// Int возвращает значение как int
func (i FlexInt) Int() int {
	return int(i)
}

func parseFlexNumber(data []byte) (float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, fmt.Errorf("invalid numeric string: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric value %q: %w", s, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid numeric value %q", s)
		}
		return v, nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, fmt.Errorf("invalid numeric value %s: %w", string(data), err)
	}
	return n.Float64()
}
