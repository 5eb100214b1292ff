package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrepareScript(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{name: "property access", script: "document.title", want: "return document.title"},
		{name: "arithmetic", script: "1 + 2", want: "return 1 + 2"},
		{name: "string literal", script: "'hello'", want: "return 'hello'"},
		{name: "object literal", script: "{ foo: 'bar' }", want: "return { foo: 'bar' }"},
		{name: "array literal", script: "[1, 2, 3]", want: "return [1, 2, 3]"},
		{name: "await", script: "await fetch('/api')", want: "return await fetch('/api')"},
		{name: "iife", script: "(function() {})()", want: "return (function() {})()"},
		{name: "explicit return", script: "return 42", want: "return 42"},
		{name: "const", script: "const x = 1; x + 1", want: "const x = 1; x + 1"},
		{name: "let", script: "let x = 1; x++; x", want: "let x = 1; x++; x"},
		{name: "if block", script: "if (true) { return 1; }", want: "if (true) { return 1; }"},
		{name: "function definition", script: "function foo() { return 1; }", want: "function foo() { return 1; }"},
		{name: "json", script: "JSON.stringify({ a: 1 })", want: "return JSON.stringify({ a: 1 })"},
		{name: "new", script: "new Date()", want: "return new Date()"},
		{name: "window access", script: "window.location.href", want: "return window.location.href"},
		{name: "trims whitespace", script: "  document.title  ", want: "return document.title"},
		{name: "single trailing semicolon", script: "location.href;", want: "return location.href;"},
		{name: "two statements", script: "a(); b()", want: "a(); b()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, prepareScript(tt.script))
		})
	}
}

func TestWrapScript(t *testing.T) {
	assert.Equal(t, "async () => {\nreturn 1\n}", wrapScript(prepareScript("1")))
}
