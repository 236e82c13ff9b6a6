package chunk

import "iter"

// Split cuts text into overlapping windows of up to window characters,
// advancing by step = max(1, window-overlap) between chunks. The sequence is
// lazy and restartable; iteration ends with the chunk whose end reaches the
// end of the text, so every character is covered exactly once across the
// non-overlapping portions. Clamping the step to 1 keeps the sequence finite
// even when overlap >= window.
func Split(text string, window, overlap int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if window <= 0 {
			// Degenerate configuration: hand back the whole text rather
			// than loop forever or drop content.
			yield(text)
			return
		}
		n := len(text)
		step := window - overlap
		if step < 1 {
			step = 1
		}
		for start := 0; start < n; start += step {
			end := start + window
			if end > n {
				end = n
			}
			if !yield(text[start:end]) {
				return
			}
			if end >= n {
				return
			}
		}
	}
}

// Count returns the number of chunks Split would produce. Useful for
// logging progress without materializing the sequence.
func Count(text string, window, overlap int) int {
	count := 0
	for range Split(text, window, overlap) {
		count++
	}
	return count
}
