package text

// Split cuts text into overlapping fixed-size windows. Windows are measured
// in runes, advance by size-overlap, and the last window may be shorter.
// Text no longer than one window is returned as-is in a single chunk.
func Split(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	// A non-positive step can never advance the window; fall back to
	// disjoint windows rather than looping forever.
	step := size - overlap
	if step <= 0 {
		step = size
	}
	if step <= 0 {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
