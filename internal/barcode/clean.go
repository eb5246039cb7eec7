package barcode

import (
	"regexp"
	"strings"
)

// Reserved command barcodes.
const (
	CommandMainMenu = "O-CMD.MAIN-MENU"
	CommandValidate = "O-BTN.validate"
	CommandPack     = "O-BTN.pack"
)

// aimPrefix matches an AIM symbology identifier such as ]C1, ]E0 or ]d2.
var aimPrefix = regexp.MustCompile(`^\][A-Za-z][0-9A-Za-z]`)

// Clean normalises typed or scanned input: surrounding whitespace and an
// AIM symbology identifier are removed, and a 12-digit UPC-A code is padded
// to its EAN-13 form.
func Clean(code string) string {
	code = strings.TrimSpace(code)
	code = aimPrefix.ReplaceAllString(code, "")
	code = strings.TrimSpace(code)
	if len(code) == 12 && isDigits(code) {
		code = "0" + code
	}
	return code
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
