package limiter

// Chunk splits items into consecutive slices of at most size elements. A size of zero or
// less yields a single chunk.
func Chunk(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]string{items}
	}

	chunks := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
