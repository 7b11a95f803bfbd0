package ibus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// serialized IBus objects are structs led by the type name and an
// attachment dictionary.

type attrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

type text struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

// NewText returns s as a serialized IBusText with no attributes, the
// argument type of the CommitText signal.
func NewText(s string) dbus.Variant {
	return dbus.MakeVariant(text{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        s,
		AttrList: dbus.MakeVariant(attrList{
			Name:        "IBusAttrList",
			Attachments: map[string]dbus.Variant{},
			Attributes:  []dbus.Variant{},
		}),
	})
}

// TextString extracts the string from a serialized IBusText.
func TextString(v dbus.Variant) (string, error) {
	if t, ok := v.Value().(text); ok {
		return t.Text, nil
	}
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) < 3 {
		return "", fmt.Errorf("ibus text: unexpected signature %s", v.Signature())
	}
	if name, _ := fields[0].(string); name != "IBusText" {
		return "", fmt.Errorf("ibus text: got %q", fields[0])
	}
	s, ok := fields[2].(string)
	if !ok {
		return "", fmt.Errorf("ibus text: text field is %T", fields[2])
	}
	return s, nil
}
