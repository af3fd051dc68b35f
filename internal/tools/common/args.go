package common

// Argument bounds for message count parameters.
const (
	DefaultCount = 10
	MaxCount     = 50
)

// StringArg extracts a string argument, returning "" when absent or of the
// wrong type.
func StringArg(args map[string]interface{}, key string) string {
	if value, ok := args[key].(string); ok {
		return value
	}
	return ""
}

// CountArg extracts a message count argument. JSON numbers arrive as
// float64. Absent or invalid values fall back to DefaultCount; the result is
// clamped to [1, MaxCount].
func CountArg(args map[string]interface{}, key string) int {
	count := DefaultCount
	if value, ok := args[key].(float64); ok && value > 0 {
		count = int(value)
	}
	// Fractional values below one truncate to zero; treat them as invalid.
	if count < 1 {
		count = DefaultCount
	}
	if count > MaxCount {
		count = MaxCount
	}
	return count
}

// BoolArg extracts a boolean argument, returning false when absent or of the
// wrong type.
func BoolArg(args map[string]interface{}, key string) bool {
	value, ok := args[key].(bool)
	return ok && value
}
