package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// FlexInt decodes a JSON integer that some clients send as a number and
// others as a quoted string ("1984" vs 1984). Both decode to the same
// int; anything non-integer is rejected at the boundary.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("value %q is not an integer", s)
	}
	*f = FlexInt(n)
	return nil
}
