package utils

import "strings"

// MaskString masks every rune of str except the first start and last end
func MaskString(str string, start, end int, mask rune) string {
	runes := []rune(str)
	if len(runes) <= start+end {
		return strings.Repeat(string(mask), len(runes))
	}
	for i := start; i < len(runes)-end; i++ {
		runes[i] = mask
	}
	return string(runes)
}

// MaskPhone masks a WhatsApp number for logs, keeping the country prefix and last four digits
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	start := 3
	if strings.HasPrefix(phone, "+") {
		start = 4
	}
	return MaskString(phone, start, 4, '*')
}
