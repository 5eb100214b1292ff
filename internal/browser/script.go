package browser

import "strings"

var statementPrefixes = []string{
	"const ", "let ", "var ", "if ", "for ", "while ", "function ", "class ", "try ",
}

var expressionPrefixes = []string{
	"await ", "(", "JSON.", "{", "[", "document.", "window.", "new ",
}

// prepareScript turns a snippet into a function body that returns its value.
// Bare expressions get an explicit return; scripts that already return, or
// that look like several statements, are left alone.
func prepareScript(script string) string {
	trimmed := strings.TrimSpace(script)

	if strings.HasPrefix(trimmed, "return ") {
		return script
	}

	multi := strings.Contains(strings.TrimSuffix(trimmed, ";"), ";")
	for _, p := range statementPrefixes {
		if strings.HasPrefix(trimmed, p) {
			multi = true
			break
		}
	}

	single := strings.HasSuffix(trimmed, ")()")
	for _, p := range expressionPrefixes {
		if strings.HasPrefix(trimmed, p) {
			single = true
			break
		}
	}

	if single || !multi {
		return "return " + trimmed
	}
	return script
}

// wrapScript makes a prepared body evaluable as an async function.
func wrapScript(body string) string {
	return "async () => {\n" + body + "\n}"
}
