// internal/browser/probes.go
package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// The probes below are self-invoking JS expressions shared by every engine.
// Each returns a plain object so the result decodes into the structs here.

// isVisibleJS mirrors the usual "be.visible" rule: rendered with a box and not
// hidden by visibility or display on the element or an ancestor.
const isVisibleJS = `function __v(el) {
  if (!el || !el.isConnected) return false;
  for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
    const s = getComputedStyle(n);
    if (s.display === 'none') return false;
    if (n === el && (s.visibility === 'hidden' || s.visibility === 'collapse')) return false;
  }
  return el.offsetWidth > 0 || el.offsetHeight > 0 || el.getClientRects().length > 0;
}`

// ElementProbe is the decoded result of the single-element probes.
type ElementProbe struct {
	Found   bool   `json:"found"`
	Present bool   `json:"present"`
	Value   string `json:"value"`
}

// TextProbe is the decoded result of ProbeText.
type TextProbe struct {
	Found   bool   `json:"found"`
	Visible bool   `json:"visible"`
	Text    string `json:"text"`
}

func jsString(s string) string {
	b, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
	return string(b)
}

// ProbeComputedStyle resolves a CSS property of the first matched element.
func ProbeComputedStyle(selector, property string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return {found: false, present: false, value: ""};
  const s = getComputedStyle(el);
  const prop = %s;
  let v = s.getPropertyValue(prop);
  if (!v && prop in s) v = String(s[prop]);
  return {found: true, present: true, value: v || ""};
})()`, jsString(selector), jsString(property))
}

// ProbeAttribute reads an attribute of the first matched element.
func ProbeAttribute(selector, name string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return {found: false, present: false, value: ""};
  const v = el.getAttribute(%s);
  return {found: true, present: v !== null, value: v === null ? "" : v};
})()`, jsString(selector), jsString(name))
}

// ProbeValue reads the live value property of the first matched element.
func ProbeValue(selector string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return {found: false, present: false, value: ""};
  return {found: true, present: 'value' in el, value: el.value == null ? "" : String(el.value)};
})()`, jsString(selector))
}

// ProbeText looks for text inside the elements matched by selector.
func ProbeText(selector, text string) string {
	return fmt.Sprintf(`(() => {
  %s
  const want = %s;
  const els = Array.from(document.querySelectorAll(%s));
  let found = false, visible = false;
  const seen = [];
  for (const el of els) {
    const t = el.textContent || "";
    seen.push(t.trim());
    if (t.includes(want)) {
      found = true;
      if (__v(el) && (el.innerText || "").includes(want)) visible = true;
    }
  }
  return {found: found, visible: visible, text: seen.filter(Boolean).join(" | ")};
})()`, isVisibleJS, jsString(text), jsString(selector))
}

// ProbeVisibleText returns the rendered text of every visible matched element.
func ProbeVisibleText(selector string) string {
	return fmt.Sprintf(`(() => {
  %s
  const out = [];
  for (const el of document.querySelectorAll(%s)) {
    if (!__v(el)) continue;
    const t = (el.innerText || "").trim();
    if (t) out.push(t);
  }
  return out.join(" | ");
})()`, isVisibleJS, jsString(selector))
}

// Lookup converts an ElementProbe into a value, mapping a miss to ErrNotFound.
func (p ElementProbe) Lookup(selector string) (string, error) {
	if !p.Found {
		return "", fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return p.Value, nil
}

// Match converts a TextProbe into a TextMatch.
func (p TextProbe) Match() TextMatch {
	return TextMatch{Found: p.Found, Visible: p.Visible, Text: p.Text}
}
