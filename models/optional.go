package models

import "encoding/json"

// OptionalString tells an absent JSON key apart from an explicit null. Set is
// true whenever the key was present; Value is nil for null.
type OptionalString struct {
	Set   bool
	Value *string
}

// SomeString returns a present, non-null OptionalString.
func SomeString(s string) OptionalString {
	return OptionalString{Set: true, Value: &s}
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}
