// Package kvutil holds key helpers shared by kv providers
package kvutil

// PrefixEnd returns the smallest key that sorts after every key beginning with prefix.
// It returns nil if there is no such key, i.e. the prefix is empty or made only of 0xff bytes.
func PrefixEnd(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] == 0xff {
			continue
		}
		end := append([]byte(nil), prefix[:i+1]...)
		end[i]++
		return end
	}
	return nil
}
