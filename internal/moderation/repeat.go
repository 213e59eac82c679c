package moderation

// CountIdentical returns how many entries of history are exactly text.
// The comparison is case- and whitespace-sensitive.
func CountIdentical(history []string, text string) int {
	n := 0
	for _, h := range history {
		if h == text {
			n++
		}
	}
	return n
}

// IsRepeatSpam reports whether text appears in history more than threshold
// times.
func IsRepeatSpam(history []string, text string, threshold int) bool {
	return CountIdentical(history, text) > threshold
}
