package drive

import "strings"

// ParsePath splits user input like "Invoices/2025/Amazon" into cleaned folder
// name segments. Surrounding whitespace is trimmed and empty segments are
// dropped. A path with no usable segments, or with characters that cannot be
// embedded in a Drive files query, is rejected with ErrInvalidPath.
func ParsePath(input string) ([]string, error) {
	parts := strings.Split(input, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.ContainsAny(part, `'\`) {
			return nil, ErrInvalidPath
		}
		segments = append(segments, part)
	}
	if len(segments) == 0 {
		return nil, ErrInvalidPath
	}
	return segments, nil
}

// JoinPath renders segments back into the display form shown to the user.
func JoinPath(segments []string) string {
	return strings.Join(segments, "/")
}
