package session

// deepMerge merges patch into base recursively. Maps merge key-by-key;
// any non-map leaf (including lists) is replaced wholesale. There is no
// implicit list concatenation: callers that want append semantics read,
// extend and write the list explicitly.
func deepMerge(base, patch map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		result[k] = v
	}
	for k, patchVal := range patch {
		baseVal, exists := result[k]
		if !exists {
			result[k] = patchVal
			continue
		}
		baseMap, baseOK := baseVal.(map[string]any)
		patchMap, patchOK := patchVal.(map[string]any)
		if baseOK && patchOK {
			result[k] = deepMerge(baseMap, patchMap)
			continue
		}
		result[k] = patchVal
	}
	return result
}
