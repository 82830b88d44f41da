//go:build !debug_mem_utils

package memutils

// DebugChecksEnabled reports whether the debug_mem_utils build tag is present
const DebugChecksEnabled = false

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
}
