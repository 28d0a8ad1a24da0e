package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// GetValue retrieves a config value by dot-separated path (e.g., "content.dir").
func (c *Config) GetValue(path string) (string, error) {
	v, err := fieldByPath(reflect.ValueOf(c).Elem(), path)
	if err != nil {
		return "", err
	}
	return formatValue(v), nil
}

// SetValue sets a config value by dot-separated path.
// The value is parsed based on the target field's type.
func (c *Config) SetValue(path, value string) error {
	v, err := fieldByPath(reflect.ValueOf(c).Elem(), path)
	if err != nil {
		return err
	}
	if v.Kind() == reflect.Struct {
		return fmt.Errorf("config key %s is a section, not a value", path)
	}
	return setFieldValue(v, path, value)
}

// fieldByPath walks v by yaml tag names.
func fieldByPath(v reflect.Value, path string) (reflect.Value, error) {
	for _, name := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", path)
		}
		field := findFieldByTag(v, name)
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", path)
		}
		v = field
	}
	return v, nil
}

// findFieldByTag finds a struct field by its yaml tag.
func findFieldByTag(v reflect.Value, name string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

func setFieldValue(field reflect.Value, path, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		i, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid integer %q for %s", value, path)
		}
		field.SetInt(int64(i))
	case reflect.Bool:
		field.SetBool(parseBool(value))
	default:
		return fmt.Errorf("unsupported field type %s for %s", field.Kind(), path)
	}
	return nil
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// parseBool parses a boolean string (case-insensitive).
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Keys returns every leaf config path in declaration order.
func Keys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, name, keys)
			continue
		}
		*keys = append(*keys, name)
	}
}
