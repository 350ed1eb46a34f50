// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"net/url"
	"reflect"
	"strings"
)

const masked = "***"

// Field names containing one of these (case-insensitive) are masked.
var sensitiveKeywords = []string{
	"password",
	"secret",
	"token",
	"apikey",
	"api_key",
	"lankey",
	"lan_key",
	"credential",
}

// MaskSecrets converts data into maps and slices suitable for printing,
// replacing the values of sensitive fields. Struct fields are named by their
// yaml tag when one is present, so the dump matches the config file.
func MaskSecrets(data any) any {
	if data == nil {
		return nil
	}
	return maskValue(reflect.ValueOf(data))
}

func maskValue(val reflect.Value) any {
	for val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Map:
		out := make(map[string]any, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			out[key] = maskField(key, iter.Value())
		}
		return out

	case reflect.Slice, reflect.Array:
		out := make([]any, val.Len())
		for i := range out {
			out[i] = maskValue(val.Index(i))
		}
		return out

	case reflect.Struct:
		out := make(map[string]any)
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			if tag, _, _ := strings.Cut(field.Tag.Get("yaml"), ","); tag == "-" {
				continue
			} else if tag != "" {
				name = tag
			}
			out[name] = maskField(name, val.Field(i))
		}
		return out
	}

	if val.Kind() == reflect.String && strings.Contains(val.String(), "://") {
		return MaskURL(val.String())
	}
	return val.Interface()
}

func maskField(name string, v reflect.Value) any {
	if isSensitiveKey(name) {
		if v.Kind() == reflect.String && v.String() == "" {
			return ""
		}
		return masked
	}
	return maskValue(v)
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// MaskURL hides userinfo and sensitive query parameters in a URL.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.User != nil {
		u.User = url.User(masked)
	}
	if q := u.Query(); len(q) > 0 {
		changed := false
		for k := range q {
			if isSensitiveKey(k) {
				q.Set(k, masked)
				changed = true
			}
		}
		if changed {
			u.RawQuery = q.Encode()
		}
	}
	return u.String()
}
