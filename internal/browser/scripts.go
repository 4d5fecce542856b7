package browser

import (
	"encoding/json"
	"strings"
)

// call renders `(fn)(arg0, arg1, ...)` with every argument JSON-encoded,
// so selectors and text never need manual escaping.
func call(fn string, args ...any) string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(fn)
	sb.WriteString(")(")
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		b, err := json.Marshal(a)
		if err != nil {
			b = []byte("null")
		}
		sb.Write(b)
	}
	sb.WriteString(")")
	return sb.String()
}

// Probes return -1 when the selector itself is invalid.
const jsQuery = `function(sel) {
	try { return document.querySelector(sel) ? 1 : 0; } catch (e) { return -1; }
}`

const jsCount = `function(sel) {
	try { return document.querySelectorAll(sel).length; } catch (e) { return -1; }
}`

const jsChatRows = `function(sel) {
	let nodes;
	try { nodes = document.querySelectorAll(sel); } catch (e) { return []; }
	const isDot = (n) => {
		const r = n.getBoundingClientRect();
		if (r.width === 0 || r.width > 14 || Math.abs(r.width - r.height) > 1) return false;
		const cs = getComputedStyle(n);
		return cs.borderRadius.indexOf('50%') >= 0 && cs.backgroundColor !== 'rgba(0, 0, 0, 0)';
	};
	return Array.from(nodes).map((el, i) => {
		const a = el.matches('a[href]') ? el : el.querySelector('a[href]');
		const text = (el.innerText || '').trim();
		let weight = parseInt(getComputedStyle(el).fontWeight, 10) || 400;
		el.querySelectorAll('span').forEach((s) => {
			const w = parseInt(getComputedStyle(s).fontWeight, 10);
			if (w > weight) weight = w;
		});
		let dot = false;
		el.querySelectorAll('span, div').forEach((n) => { if (!dot && isDot(n)) dot = true; });
		const data = Object.assign({}, el.dataset || {}, (a && a.dataset) || {});
		return {
			index: i,
			text: text,
			lines: text.split('\n').map((s) => s.trim()).filter(Boolean),
			href: a ? (a.getAttribute('href') || '') : '',
			ariaLabel: el.getAttribute('aria-label') || (a && a.getAttribute('aria-label')) || '',
			classes: typeof el.className === 'string' ? el.className : '',
			fontWeight: weight,
			hasUnreadDot: dot,
			data: data,
		};
	});
}`

const jsMessageRows = `function(sel) {
	let nodes;
	try { nodes = document.querySelectorAll(sel); } catch (e) { return []; }
	return Array.from(nodes).map((el, i) => {
		const row = el.getBoundingClientRect();
		const bubble = el.querySelector('div[dir="auto"]') || el;
		const b = bubble.getBoundingClientRect();
		let right = row.width > 0 && (b.left - row.left) > (row.right - b.right) + 20;
		let n = bubble;
		for (let d = 0; n && n !== el.parentElement && d < 8; d++, n = n.parentElement) {
			const cs = getComputedStyle(n);
			if (cs.justifyContent === 'flex-end' || cs.alignSelf === 'flex-end' || cs.alignItems === 'flex-end') { right = true; break; }
		}
		const cls = typeof el.className === 'string' ? el.className : '';
		const author = el.querySelector('h4, h5, [data-scope="messages_table"] span[dir="auto"] strong');
		const ts = el.querySelector('[data-tooltip-content], abbr[aria-label], time');
		return {
			index: i,
			text: (bubble.innerText || el.innerText || '').trim(),
			classes: cls,
			ariaLabel: el.getAttribute('aria-label') || '',
			author: author ? author.innerText.trim() : '',
			timestamp: ts ? (ts.getAttribute('data-tooltip-content') || ts.getAttribute('aria-label') || ts.getAttribute('datetime') || '') : '',
			alignRight: right,
			outgoingTag: /outgoing|message-out|self/i.test(cls) || !!el.querySelector('[data-testid="outgoing_message"]'),
		};
	});
}`

const jsClickRow = `function(sel, index) {
	let nodes;
	try { nodes = document.querySelectorAll(sel); } catch (e) { return false; }
	const el = nodes[index];
	if (!el) return false;
	el.scrollIntoView({ block: 'center' });
	const target = el.matches('a[href]') ? el : (el.querySelector('a[href], [role="link"]') || el);
	target.click();
	return true;
}`

const jsClick = `function(sel) {
	let el;
	try { el = document.querySelector(sel); } catch (e) { return false; }
	if (!el) return false;
	el.click();
	return true;
}`

const jsText = `function(sel) {
	let el;
	try { el = document.querySelector(sel); } catch (e) { return ''; }
	return el ? (el.innerText || el.textContent || '').trim() : '';
}`

const jsAttr = `function(sel, name) {
	let el;
	try { el = document.querySelector(sel); } catch (e) { return ''; }
	return el ? (el.getAttribute(name) || '') : '';
}`

const jsHTML = `function() { return document.documentElement.outerHTML; }`

// jsScrollUp scrolls the nearest scrollable ancestor of sel to the top and
// reports whether it moved.
const jsScrollUp = `function(sel) {
	let el;
	try { el = document.querySelector(sel); } catch (e) { return false; }
	while (el && el.scrollHeight <= el.clientHeight) el = el.parentElement;
	if (!el) return false;
	const before = el.scrollTop;
	el.scrollTop = 0;
	return before > 0;
}`

const jsCaretEnd = `const caretEnd = (el) => {
		el.focus();
		if (el.isContentEditable) {
			const r = document.createRange();
			r.selectNodeContents(el);
			r.collapse(false);
			const s = window.getSelection();
			s.removeAllRanges();
			s.addRange(r);
		} else if (typeof el.setSelectionRange === 'function') {
			el.setSelectionRange(el.value.length, el.value.length);
		}
	};
	const valueOf = (el) => (el.value !== undefined ? el.value : el.innerText) || '';`

const jsInsertText = `function(sel, text) {
	const el = document.querySelector(sel);
	if (!el) return false;
	` + jsCaretEnd + `
	caretEnd(el);
	const before = valueOf(el);
	let ok = false;
	try { ok = document.execCommand('insertText', false, text); } catch (e) {}
	if (!ok || valueOf(el) === before) {
		if (el.value !== undefined) el.value = before + text;
		else el.textContent = before + text;
		el.dispatchEvent(new InputEvent('input', { bubbles: true, data: text, inputType: 'insertText' }));
	}
	return true;
}`

const jsInputText = `function(sel) {
	const el = document.querySelector(sel);
	if (!el) return '';
	return (el.value !== undefined ? el.value : el.innerText) || '';
}`

const jsClearInput = `function(sel) {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.focus();
	try {
		document.execCommand('selectAll', false, null);
		document.execCommand('delete', false, null);
	} catch (e) {}
	const left = (el.value !== undefined ? el.value : el.innerText) || '';
	if (left.trim() !== '') {
		if (el.value !== undefined) el.value = '';
		else el.textContent = '';
		el.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'deleteContentBackward' }));
	}
	return true;
}`

const jsToggleSpace = `function(sel) {
	const el = document.querySelector(sel);
	if (!el) return false;
	` + jsCaretEnd + `
	caretEnd(el);
	const v = valueOf(el);
	if (v.endsWith(' ')) document.execCommand('delete', false, null);
	else document.execCommand('insertText', false, ' ');
	return true;
}`

const jsFocus = `function(sel) {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.focus();
	return true;
}`

// jsClickSendIcon looks for an SVG button next to the composer that is not
// one of the attachment, emoji or like controls.
const jsClickSendIcon = `function(sel) {
	const input = document.querySelector(sel);
	if (!input) return false;
	const skip = /like|thumb|emoji|gif|sticker|attach|photo|voice|clip|more/i;
	let box = input;
	for (let d = 0; d < 6 && box.parentElement; d++) {
		box = box.parentElement;
		if (box.querySelectorAll('svg').length > 0 && box.getBoundingClientRect().width > input.getBoundingClientRect().width) break;
	}
	const ir = input.getBoundingClientRect();
	const cands = Array.from(box.querySelectorAll('svg')).map((svg) => svg.closest('[role="button"], button') || svg.parentElement)
		.filter((b) => b && !skip.test(b.getAttribute('aria-label') || ''));
	const named = cands.find((b) => /send|press enter/i.test(b.getAttribute('aria-label') || ''));
	const right = cands.filter((b) => b.getBoundingClientRect().left >= ir.right - 5);
	const target = named || right[right.length - 1];
	if (!target) return false;
	target.click();
	return true;
}`

const jsHighlight = `function(sel, on) {
	const el = document.querySelector(sel);
	if (!el) return false;
	if (on) {
		el.dataset.fbmOutline = el.style.outline || '';
		el.dataset.fbmBackground = el.style.backgroundColor || '';
		el.style.outline = '2px solid #f5a623';
		el.style.backgroundColor = 'rgba(245, 166, 35, 0.12)';
	} else {
		el.style.outline = el.dataset.fbmOutline || '';
		el.style.backgroundColor = el.dataset.fbmBackground || '';
		delete el.dataset.fbmOutline;
		delete el.dataset.fbmBackground;
	}
	return true;
}`

const jsShowBanner = `function(text) {
	let b = document.getElementById('fbmonitor-banner');
	if (!b) {
		b = document.createElement('div');
		b.id = 'fbmonitor-banner';
		b.style.cssText = 'position:fixed;top:12px;left:50%;transform:translateX(-50%);z-index:2147483647;' +
			'background:#1f2937;color:#fff;padding:8px 14px;border-radius:8px;font:13px system-ui,sans-serif;' +
			'box-shadow:0 4px 12px rgba(0,0,0,.3);pointer-events:none';
		document.body.appendChild(b);
	}
	b.textContent = text;
	return true;
}`

const jsRemoveBanner = `function() {
	const b = document.getElementById('fbmonitor-banner');
	if (b) b.remove();
	return true;
}`

// jsArmManualWatch records a send click or any operator typing in the
// composer into window.__fbmManual.
const jsArmManualWatch = `function(inputSel, sendSel) {
	if (window.__fbmManualCleanup) window.__fbmManualCleanup();
	const state = { sendClicked: false, inputTouched: false };
	window.__fbmManual = state;
	const input = document.querySelector(inputSel);
	const onClick = (e) => {
		const t = e.target;
		if (!t || !t.closest) return;
		if ((sendSel && t.closest(sendSel)) || t.closest('[aria-label*="send" i], [aria-label*="press enter" i]')) state.sendClicked = true;
	};
	const onKey = (e) => {
		if (e.key === 'Enter' && !e.shiftKey) state.sendClicked = true;
		else state.inputTouched = true;
	};
	const onEdit = () => { state.inputTouched = true; };
	document.addEventListener('click', onClick, true);
	if (input) {
		input.addEventListener('keydown', onKey, true);
		input.addEventListener('paste', onEdit, true);
		input.addEventListener('cut', onEdit, true);
	}
	window.__fbmManualCleanup = () => {
		document.removeEventListener('click', onClick, true);
		if (input) {
			input.removeEventListener('keydown', onKey, true);
			input.removeEventListener('paste', onEdit, true);
			input.removeEventListener('cut', onEdit, true);
		}
	};
	return true;
}`

const jsManualState = `function() {
	return window.__fbmManual || { sendClicked: false, inputTouched: false };
}`

// jsObserver watches the page for DOM changes inside the chat list or the
// open conversation and reports them, debounced, through the CDP binding.
const jsObserver = `function(binding, containers, lists, debounceMs) {
	if (window.__fbmObserver) return true;
	const match = (node, sels) => {
		const el = node.nodeType === 1 ? node : node.parentElement;
		if (!el || !el.closest) return false;
		return sels.some((s) => { try { return !!el.closest(s); } catch (e) { return false; } });
	};
	let timer = null;
	let kinds = {};
	const flush = () => {
		timer = null;
		const payload = Object.keys(kinds).join(',');
		kinds = {};
		if (typeof window[binding] === 'function') window[binding](payload);
	};
	window.__fbmObserver = new MutationObserver((records) => {
		for (const r of records) {
			if (match(r.target, containers)) kinds.messages = true;
			else if (match(r.target, lists)) kinds.chats = true;
		}
		if (Object.keys(kinds).length && !timer) timer = setTimeout(flush, debounceMs);
	});
	const start = () => window.__fbmObserver.observe(document.body, { childList: true, subtree: true, characterData: true });
	if (document.body) start(); else document.addEventListener('DOMContentLoaded', start);
	return true;
}`
