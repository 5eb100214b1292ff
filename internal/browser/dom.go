package browser

import (
	"bytes"
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vdavid/tauri-mcp/internal/dispatch"
)

// DOMNode is one element of a dom_snapshot. Accessibility snapshots fill
// Role and the state fields; structure snapshots fill Tag, ID and Classes.
type DOMNode struct {
	Role     string     `json:"role,omitempty" yaml:"role,omitempty"`
	Tag      string     `json:"tag,omitempty" yaml:"tag,omitempty"`
	ID       string     `json:"id,omitempty" yaml:"id,omitempty"`
	Classes  []string   `json:"classes,omitempty" yaml:"classes,omitempty,flow"`
	Name     string     `json:"name,omitempty" yaml:"name,omitempty"`
	Text     string     `json:"text,omitempty" yaml:"text,omitempty"`
	Level    int        `json:"level,omitempty" yaml:"level,omitempty"`
	Href     string     `json:"href,omitempty" yaml:"href,omitempty"`
	Value    *string    `json:"value,omitempty" yaml:"value,omitempty"`
	Checked  *bool      `json:"checked,omitempty" yaml:"checked,omitempty"`
	Disabled bool       `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Children []*DOMNode `json:"children,omitempty" yaml:"children,omitempty"`
}

var snapshotTypes = []string{"accessibility", "structure"}

// domWalkJS returns {nodes} for the subtree at selector (default body), or
// {error} when the selector matches nothing. Generic wrappers without a role
// or text of their own are flattened out of accessibility trees.
const domWalkJS = `(type, selector) => {
	const root = selector ? document.querySelector(selector) : document.body;
	if (!root) return { error: 'notfound' };
	const maxDepth = 40;
	const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'SVG']);
	const roles = {
		A: 'link', BUTTON: 'button', IMG: 'img', NAV: 'navigation', MAIN: 'main',
		HEADER: 'banner', FOOTER: 'contentinfo', ASIDE: 'complementary', SECTION: 'region',
		UL: 'list', OL: 'list', LI: 'listitem', TABLE: 'table', TR: 'row', TD: 'cell',
		TH: 'columnheader', FORM: 'form', SELECT: 'combobox', OPTION: 'option',
		TEXTAREA: 'textbox', DIALOG: 'dialog', P: 'paragraph', LABEL: 'label',
		H1: 'heading', H2: 'heading', H3: 'heading', H4: 'heading', H5: 'heading', H6: 'heading'
	};
	const inputRoles = {
		checkbox: 'checkbox', radio: 'radio', button: 'button', submit: 'button',
		reset: 'button', range: 'slider', search: 'searchbox'
	};
	const clip = s => s.length > 100 ? s.slice(0, 100) + '...' : s;
	const ownText = el => Array.from(el.childNodes)
		.filter(n => n.nodeType === Node.TEXT_NODE)
		.map(n => n.textContent.trim())
		.filter(Boolean)
		.join(' ');
	const hidden = el => {
		if (el.hidden || el.getAttribute('aria-hidden') === 'true') return true;
		const s = getComputedStyle(el);
		return s.display === 'none' || s.visibility === 'hidden';
	};

	function a11y(el, depth) {
		const tag = el.tagName.toUpperCase();
		if (skip.has(tag) || depth > maxDepth || hidden(el)) return [];
		const kids = [];
		for (const c of el.children) kids.push(...a11y(c, depth + 1));
		const text = ownText(el);
		const role = el.getAttribute('role') || (tag === 'INPUT' ? (inputRoles[el.type] || 'textbox') : roles[tag]) || '';
		if (!role && !text) return kids;
		const label = el.labels && el.labels.length ? el.labels[0].textContent.trim() : '';
		const name = el.getAttribute('aria-label') || el.getAttribute('alt') || el.getAttribute('title') ||
			el.getAttribute('placeholder') || label || text;
		const node = { role: role || 'text' };
		if (name) node.name = clip(name);
		if (/^H[1-6]$/.test(tag)) node.level = Number(tag[1]);
		if (tag === 'A' && el.getAttribute('href')) node.href = el.getAttribute('href');
		if (el.type === 'checkbox' || el.type === 'radio') node.checked = !!el.checked;
		else if (tag === 'INPUT' || tag === 'TEXTAREA' || tag === 'SELECT') node.value = String(el.value);
		if (el.disabled) node.disabled = true;
		if (kids.length) node.children = kids;
		return [node];
	}

	function structure(el, depth) {
		if (skip.has(el.tagName.toUpperCase())) return null;
		const node = { tag: el.tagName.toLowerCase() };
		if (el.id) node.id = el.id;
		if (el.classList.length) node.classes = Array.from(el.classList);
		const text = ownText(el);
		if (text) node.text = clip(text);
		if (depth < maxDepth) {
			const kids = [];
			for (const c of el.children) {
				const k = structure(c, depth + 1);
				if (k) kids.push(k);
			}
			if (kids.length) node.children = kids;
		}
		return node;
	}

	return { nodes: type === 'structure' ? [structure(root, 0)].filter(Boolean) : a11y(root, 0) };
}`

func (h *Host) domSnapshot(ctx context.Context, call *dispatch.Call) (any, error) {
	typ := call.StringOr("type", "accessibility")
	if typ != snapshotTypes[0] && typ != snapshotTypes[1] {
		return nil, &choiceError{what: "snapshot type", got: typ, choices: snapshotTypes}
	}
	selector := call.StringOr("selector", "")

	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	var arg any
	if selector != "" {
		arg = selector
	}
	res, err := p.Eval(domWalkJS, typ, arg)
	if err != nil {
		return nil, &scriptError{err: err}
	}
	var out struct {
		Error string     `json:"error"`
		Nodes []*DOMNode `json:"nodes"`
	}
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if out.Error != "" {
		return nil, &elementError{selector: selector}
	}
	return renderDOM(out.Nodes)
}

// renderDOM writes nodes as a YAML document with two-space indentation.
func renderDOM(nodes []*DOMNode) (string, error) {
	if nodes == nil {
		nodes = []*DOMNode{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(nodes); err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}
	return buf.String(), nil
}
