package browser

import (
	"fmt"

	json "github.com/json-iterator/go"
)

const refAttr = "data-uipilot-ref"

// captureScript walks the body and returns a domNode tree. Every visited
// element is tagged with refAttr so later calls can address it again.
const captureScript = `(() => {
  if (!document.body) return null;
  const SKIP = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'HEAD', 'META', 'LINK']);
  const CLICK_TAGS = new Set(['A', 'BUTTON', 'SELECT', 'SUMMARY', 'LABEL', 'OPTION']);
  const CLICK_ROLES = new Set(['button', 'link', 'tab', 'menuitem', 'checkbox', 'radio', 'switch', 'option']);
  const TEXT_INPUTS = new Set(['', 'text', 'search', 'email', 'url', 'tel', 'password', 'number']);
  let seq = 0;

  const ownText = (el) => {
    let t = '';
    for (const n of el.childNodes) {
      if (n.nodeType === Node.TEXT_NODE) t += n.textContent;
    }
    return t.replace(/\s+/g, ' ').trim().slice(0, 200);
  };

  const walk = (el, depth) => {
    if (depth > 256 || SKIP.has(el.tagName)) return null;
    const ref = 'n' + (seq++);
    el.setAttribute('` + refAttr + `', ref);

    const rect = el.getBoundingClientRect();
    const style = window.getComputedStyle(el);
    const tag = el.tagName.toLowerCase();
    const role = el.getAttribute('role') || '';
    const isInput = el.tagName === 'INPUT' && TEXT_INPUTS.has((el.getAttribute('type') || '').toLowerCase());
    const editable = isInput || el.tagName === 'TEXTAREA' || el.isContentEditable;

    let text = ownText(el);
    if (isInput || el.tagName === 'TEXTAREA') text = el.value || el.placeholder || '';

    const node = {
      ref: ref,
      cls: role ? tag + '[role=' + role + ']' : tag,
      text: text,
      desc: el.getAttribute('aria-label') || el.getAttribute('alt') || el.getAttribute('title') || '',
      l: Math.round(rect.left), t: Math.round(rect.top),
      r: Math.round(rect.right), b: Math.round(rect.bottom),
      visible: rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' &&
        style.display !== 'none' && style.opacity !== '0',
      clickable: CLICK_TAGS.has(el.tagName) || CLICK_ROLES.has(role) ||
        typeof el.onclick === 'function' || style.cursor === 'pointer',
      editable: editable,
      multiline: editable && !isInput,
      children: [],
    };
    for (const child of el.children) {
      const c = walk(child, depth + 1);
      if (c) node.children.push(c);
    }
    return node;
  };
  return walk(document.body, 0);
})()`

// elementScript wraps body in a function receiving the referenced element as
// el. The script returns false when the element is gone.
func elementScript(ref, body string, args ...string) string {
	encoded := make([]string, 0, len(args)+1)
	for _, a := range append([]string{ref}, args...) {
		b, _ := json.Marshal(a)
		encoded = append(encoded, string(b))
	}
	params := "ref"
	call := encoded[0]
	for i, a := range encoded[1:] {
		params += fmt.Sprintf(", a%d", i)
		call += ", " + a
	}
	return fmt.Sprintf(`((%s) => {
  const el = document.querySelector('[%s="' + CSS.escape(ref) + '"]');
  if (!el) return false;
  %s
  return true;
})(%s)`, params, refAttr, body, call)
}

const focusBody = `el.scrollIntoView({block: 'center'});
  el.focus();`

// setValueBody uses the prototype setter so framework-controlled inputs see
// the change.
const setValueBody = `el.focus();
  if (el.isContentEditable) {
    el.textContent = a0;
  } else {
    const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
    Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, a0);
  }
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));`

const submitBody = `const opts = {key: 'Enter', code: 'Enter', keyCode: 13, which: 13, bubbles: true, cancelable: true};
  const proceed = el.dispatchEvent(new KeyboardEvent('keydown', opts));
  el.dispatchEvent(new KeyboardEvent('keypress', opts));
  el.dispatchEvent(new KeyboardEvent('keyup', opts));
  if (proceed && el.form) {
    if (typeof el.form.requestSubmit === 'function') el.form.requestSubmit(); else el.form.submit();
  }`
