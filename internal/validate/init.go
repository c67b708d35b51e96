package validate

// CleanInitResponse reduces an init-handshake response to the fields the SDK
// trusts: enabled (bool), server_ts (positive number) and configurations
// (array). Anything else the server sent is discarded. Returns false when
// there is no document at all.
func CleanInitResponse(doc map[string]any) (map[string]any, bool) {
	if doc == nil {
		return nil, false
	}

	cleaned := make(map[string]any, 3)

	if enabled, ok := doc["enabled"].(bool); ok {
		cleaned["enabled"] = enabled
	}

	if ts, ok := doc["server_ts"].(float64); ok && ts > 0 {
		cleaned["server_ts"] = int64(ts)
	}

	if configs, ok := doc["configurations"].([]any); ok {
		cleaned["configurations"] = configs
	}

	return cleaned, true
}
