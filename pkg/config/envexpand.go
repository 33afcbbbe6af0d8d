package config

import "os"

// ExpandEnv expands ${VAR}/$VAR references in YAML content before
// parsing. Missing variables expand to the empty string; a field left
// empty by that keeps its built-in default, since the merge in Load does
// not override with empty values.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
