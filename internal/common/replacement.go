// -----------------------------------------------------------------------
// Key Reference Replacement - {NAME} substitution from the environment
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
)

// keyRefPattern matches {key-name} references in strings.
// Allows alphanumeric characters, hyphens, and underscores.
//
// The {key-name} syntax lets configuration values reference environment
// variables, so credentials never have to live in the config file:
//
//	Input:  password = "{PSEG_PASSWORD}"
//	Env:    PSEG_PASSWORD=hunter2
//	Output: password resolves to "hunter2"
//
// Replacement is case-sensitive. Missing keys are logged as warnings but
// not treated as errors; the reference is left in place.
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// EnvReferenceMap builds a lookup map from the process environment for use
// with ReplaceKeyReferences and ReplaceInStruct.
func EnvReferenceMap() map[string]string {
	env := os.Environ()
	m := make(map[string]string, len(env))
	for _, entry := range env {
		if idx := strings.IndexByte(entry, '='); idx > 0 {
			m[entry[:idx]] = entry[idx+1:]
		}
	}
	return m
}

// ReplaceKeyReferences replaces all {key-name} references in the input
// string with values from the provided map. If a key is not found, the
// reference is left unchanged and a warning is logged.
//
// Resolved values are never logged; references usually point at secrets.
func ReplaceKeyReferences(input string, values map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}

	logUnresolvedKeys(input, values, logger)

	result := keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		keyName := match[1 : len(match)-1]

		if value, exists := values[keyName]; exists {
			return value
		}

		// Key not found - return unchanged
		return match
	})

	return result
}

// logUnresolvedKeys finds all {key-name} references and logs warnings for missing keys
func logUnresolvedKeys(input string, values map[string]string, logger arbor.ILogger) {
	matches := keyRefPattern.FindAllStringSubmatch(input, -1)
	for _, match := range matches {
		if len(match) > 1 {
			keyName := match[1]
			if _, exists := values[keyName]; !exists {
				logger.Warn().
					Str("reference", match[0]).
					Str("key", keyName).
					Msg("Unresolved key reference - variable not set in environment")
			}
		}
	}
}

// ReplaceInStruct uses reflection to recursively replace {key-name}
// references in a struct's string fields. It handles nested structs,
// string maps, string slices, and pointer fields. The struct must be
// passed as a pointer for in-place mutation.
func ReplaceInStruct(v interface{}, values map[string]string, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)

	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("ReplaceInStruct requires a pointer, got %T", v)
	}

	val = val.Elem()

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("ReplaceInStruct requires a struct pointer, got pointer to %v", val.Kind())
	}

	return replaceInStructValue(val, values, logger)
}

// replaceInStructValue is the recursive implementation for struct traversal
func replaceInStructValue(val reflect.Value, values map[string]string, logger arbor.ILogger) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			oldValue := field.String()
			newValue := ReplaceKeyReferences(oldValue, values, logger)
			if oldValue != newValue {
				field.SetString(newValue)
				logger.Debug().
					Str("field", fieldType.Name).
					Msg("Resolved key reference in struct field")
			}

		case reflect.Struct:
			if err := replaceInStructValue(field, values, logger); err != nil {
				return fmt.Errorf("failed to replace in nested struct field '%s': %w", fieldType.Name, err)
			}

		case reflect.Ptr:
			if !field.IsNil() {
				elem := field.Elem()
				if elem.Kind() == reflect.Struct {
					if err := replaceInStructValue(elem, values, logger); err != nil {
						return fmt.Errorf("failed to replace in pointer field '%s': %w", fieldType.Name, err)
					}
				}
			}

		case reflect.Map:
			// Only map[string]string appears in config structures
			if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.String {
				mapVal := field.Interface().(map[string]string)
				for key, value := range mapVal {
					oldValue := value
					newValue := ReplaceKeyReferences(value, values, logger)
					if oldValue != newValue {
						mapVal[key] = newValue
						logger.Debug().
							Str("field", fieldType.Name).
							Str("key", key).
							Msg("Resolved key reference in map field")
					}
				}
			}

		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				for i := 0; i < field.Len(); i++ {
					elem := field.Index(i)
					oldValue := elem.String()
					newValue := ReplaceKeyReferences(oldValue, values, logger)
					if oldValue != newValue {
						elem.SetString(newValue)
						logger.Debug().
							Str("field", fieldType.Name).
							Int("index", i).
							Msg("Resolved key reference in slice field")
					}
				}
			}
		}
	}

	return nil
}
