package core

// dangerousOperators are Mongo query operators that allow server-side code
// execution or query shape manipulation when smuggled inside stored
// documents. They are stripped, not rejected, so a submission with a
// hostile key still stores its harmless remainder.
var dangerousOperators = map[string]bool{
	"$where":      true,
	"$regex":      true,
	"$text":       true,
	"$expr":       true,
	"$jsonSchema": true,
	"$mod":        true,
	"$ne":         true,
}

// SanitizeValue recursively removes dangerous Mongo operators from any
// decoded JSON value. Maps and slices are rebuilt, scalars pass through.
func SanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return SanitizeDocument(v)
	case []interface{}:
		result := make([]interface{}, 0, len(v))
		for _, item := range v {
			result = append(result, SanitizeValue(item))
		}
		return result
	case []map[string]interface{}:
		return SanitizeDocuments(v)
	default:
		return value
	}
}

// SanitizeDocument removes dangerous Mongo operators from a document,
// recursing into nested maps and arrays.
func SanitizeDocument(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return nil
	}

	result := make(map[string]interface{})
	for k, v := range doc {
		if dangerousOperators[k] {
			continue
		}
		result[k] = SanitizeValue(v)
	}
	return result
}

// SanitizeDocuments sanitizes each document in a slice. Trace arrays
// decode as []map[string]interface{}, so this keeps their static type.
func SanitizeDocuments(docs []map[string]interface{}) []map[string]interface{} {
	if docs == nil {
		return nil
	}

	result := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		result = append(result, SanitizeDocument(doc))
	}
	return result
}
