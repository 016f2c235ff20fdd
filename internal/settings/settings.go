// Package settings decodes the operator settings attached to a dartboard.
//
// A setting is one of four kinds. The JSON "type" tag is looked at exactly
// once, in List.UnmarshalJSON; everything after that works on the concrete
// types through type switches.
package settings

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind is the JSON type tag of a setting.
type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindSelect Kind = "select"
)

// Setting is implemented by IntSetting, FloatSetting, BoolSetting and
// SelectSetting only.
type Setting interface {
	Kind() Kind
	Info() Meta
	Validate() error
	sealed()
}

// Meta holds the fields every setting has.
type Meta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// IntSetting is an integer bounded by [Min, Max].
type IntSetting struct {
	Meta
	Default int64
	Value   int64
	Min     int64
	Max     int64
}

// FloatSetting is a float bounded by [Min, Max].
type FloatSetting struct {
	Meta
	Default float64
	Value   float64
	Min     float64
	Max     float64
}

// BoolSetting is an on/off switch.
type BoolSetting struct {
	Meta
	Default bool
	Value   bool
}

// SelectSetting is one choice out of Data.
type SelectSetting struct {
	Meta
	Default any
	Value   any
	Data    []any
}

func (IntSetting) Kind() Kind    { return KindInt }
func (FloatSetting) Kind() Kind  { return KindFloat }
func (BoolSetting) Kind() Kind   { return KindBool }
func (SelectSetting) Kind() Kind { return KindSelect }

func (s IntSetting) Info() Meta    { return s.Meta }
func (s FloatSetting) Info() Meta  { return s.Meta }
func (s BoolSetting) Info() Meta   { return s.Meta }
func (s SelectSetting) Info() Meta { return s.Meta }

func (IntSetting) sealed()    {}
func (FloatSetting) sealed()  {}
func (BoolSetting) sealed()   {}
func (SelectSetting) sealed() {}

// Validate checks the value against the bounds.
func (s IntSetting) Validate() error {
	if s.Min > s.Max {
		return fmt.Errorf("%s: min %d above max %d", s.Name, s.Min, s.Max)
	}
	if s.Value < s.Min || s.Value > s.Max {
		return fmt.Errorf("%s: value %d outside [%d, %d]", s.Name, s.Value, s.Min, s.Max)
	}
	return nil
}

// Validate checks the value against the bounds.
func (s FloatSetting) Validate() error {
	if s.Min > s.Max {
		return fmt.Errorf("%s: min %g above max %g", s.Name, s.Min, s.Max)
	}
	if s.Value < s.Min || s.Value > s.Max {
		return fmt.Errorf("%s: value %g outside [%g, %g]", s.Name, s.Value, s.Min, s.Max)
	}
	return nil
}

// Validate always succeeds.
func (s BoolSetting) Validate() error { return nil }

// Validate checks that a chosen value is one of the options.
func (s SelectSetting) Validate() error {
	if s.Value == nil {
		return nil
	}
	for _, d := range s.Data {
		if reflect.DeepEqual(d, s.Value) {
			return nil
		}
	}
	return fmt.Errorf("%s: %v is not one of %v", s.Name, s.Value, s.Data)
}

// Widget names the input control used to edit s.
func Widget(s Setting) string {
	switch v := s.(type) {
	case IntSetting:
		if v.Max-v.Min <= 100 {
			return "slider"
		}
		return "number"
	case FloatSetting:
		return "slider"
	case BoolSetting:
		return "switch"
	case SelectSetting:
		return "select"
	default:
		panic(fmt.Sprintf("settings: unexpected setting type %T", s))
	}
}

// CurrentValue returns the effective value of s.
func CurrentValue(s Setting) any {
	switch v := s.(type) {
	case IntSetting:
		return v.Value
	case FloatSetting:
		return v.Value
	case BoolSetting:
		return v.Value
	case SelectSetting:
		if v.Value == nil {
			return v.Default
		}
		return v.Value
	default:
		panic(fmt.Sprintf("settings: unexpected setting type %T", s))
	}
}

// List is a decoded list of settings.
type List []Setting

type tagOnly struct {
	Type Kind `json:"type"`
}

type intWire struct {
	Meta
	Type    Kind   `json:"type"`
	Default int64  `json:"default_value"`
	Value   *int64 `json:"value"`
	Min     int64  `json:"min_value"`
	Max     int64  `json:"max_value"`
}

type floatWire struct {
	Meta
	Type    Kind     `json:"type"`
	Default float64  `json:"default_value"`
	Value   *float64 `json:"value"`
	Min     float64  `json:"min_value"`
	Max     float64  `json:"max_value"`
}

type boolWire struct {
	Meta
	Type    Kind  `json:"type"`
	Default bool  `json:"default_value"`
	Value   *bool `json:"value"`
}

type selectWire struct {
	Meta
	Type    Kind  `json:"type"`
	Default any   `json:"default_value"`
	Value   any   `json:"value"`
	Data    []any `json:"data"`
}

// UnmarshalJSON decodes each element by its type tag. A missing value falls
// back to the default.
func (l *List) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(List, 0, len(raws))
	for i, raw := range raws {
		s, err := decode(raw)
		if err != nil {
			return fmt.Errorf("setting %d: %w", i, err)
		}
		out = append(out, s)
	}
	*l = out
	return nil
}

func decode(raw json.RawMessage) (Setting, error) {
	var tag tagOnly
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case KindInt:
		var w intWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		s := IntSetting{Meta: w.Meta, Default: w.Default, Value: w.Default, Min: w.Min, Max: w.Max}
		if w.Value != nil {
			s.Value = *w.Value
		}
		return s, nil
	case KindFloat:
		var w floatWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		s := FloatSetting{Meta: w.Meta, Default: w.Default, Value: w.Default, Min: w.Min, Max: w.Max}
		if w.Value != nil {
			s.Value = *w.Value
		}
		return s, nil
	case KindBool:
		var w boolWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		s := BoolSetting{Meta: w.Meta, Default: w.Default, Value: w.Default}
		if w.Value != nil {
			s.Value = *w.Value
		}
		return s, nil
	case KindSelect:
		var w selectWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return SelectSetting{Meta: w.Meta, Default: w.Default, Value: w.Value, Data: w.Data}, nil
	default:
		return nil, fmt.Errorf("unknown setting type %q", tag.Type)
	}
}

// MarshalJSON encodes the settings in the same tagged shape they are read
// from.
func (l List) MarshalJSON() ([]byte, error) {
	out := make([]any, len(l))
	for i, s := range l {
		switch v := s.(type) {
		case IntSetting:
			value := v.Value
			out[i] = intWire{Meta: v.Meta, Type: KindInt, Default: v.Default, Value: &value, Min: v.Min, Max: v.Max}
		case FloatSetting:
			value := v.Value
			out[i] = floatWire{Meta: v.Meta, Type: KindFloat, Default: v.Default, Value: &value, Min: v.Min, Max: v.Max}
		case BoolSetting:
			value := v.Value
			out[i] = boolWire{Meta: v.Meta, Type: KindBool, Default: v.Default, Value: &value}
		case SelectSetting:
			out[i] = selectWire{Meta: v.Meta, Type: KindSelect, Default: v.Default, Value: v.Value, Data: v.Data}
		default:
			return nil, fmt.Errorf("unexpected setting type %T", s)
		}
	}
	return json.Marshal(out)
}

// Validate validates every setting.
func (l List) Validate() error {
	for _, s := range l {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
