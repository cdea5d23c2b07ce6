package hexconv

// Halfbyte maps an ASCII hex digit into its value. Every other character maps
// into 0xff, so a|b > 0x0f is enough to validate a pair of digits at once.
var Halfbyte = func() (table [256]byte) {
	for i := range table {
		table[i] = 0xff
	}

	for c := byte('0'); c <= '9'; c++ {
		table[c] = c - '0'
	}

	for c := byte('a'); c <= 'f'; c++ {
		table[c] = c - 'a' + 10
		table[c-'a'+'A'] = c - 'a' + 10
	}

	return table
}()
