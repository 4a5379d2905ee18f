package browser

import (
	"encoding/json"
	"fmt"
)

// bindingName is the page function that forwards events to Go
const bindingName = "rbEvent"

// observerScript runs on every new document. It reports added nodes and
// visibility changes through the binding.
const observerScript = `(() => {
  if (window.__rbObserver) return;
  const send = (m) => { try { window.rbEvent(JSON.stringify(m)); } catch (e) {} };
  const start = () => {
    window.__rbObserver = new MutationObserver((muts) => {
      for (const m of muts) {
        if (m.addedNodes.length > 0) { send({type: 'mutation'}); return; }
      }
    });
    window.__rbObserver.observe(document.body, {childList: true, subtree: true});
  };
  if (document.body) start(); else document.addEventListener('DOMContentLoaded', start);
  document.addEventListener('visibilitychange', () => send({type: 'visibility', hidden: document.hidden}));
})()`

// snapshotScript tags candidate elements and returns the document HTML
const snapshotScript = `(() => {
  const tag = (el) => {
    if (!el.hasAttribute('data-rb-ref')) {
      window.__rbSeq = (window.__rbSeq || 0) + 1;
      el.setAttribute('data-rb-ref', String(window.__rbSeq));
    }
  };
  document.querySelectorAll('div[role="button"], div[role="menuitem"], a[href^="/@"], div[role="dialog"]').forEach((el) => {
    tag(el);
    el.setAttribute('data-rb-color', window.getComputedStyle(el).color);
    el.setAttribute('data-rb-visible', el.offsetParent !== null ? 'true' : 'false');
  });
  document.querySelectorAll('svg[aria-label="更多"], svg[aria-label="More"]').forEach((svg) => {
    let w = svg.style.width ? parseInt(svg.style.width, 10) : 24;
    if (isNaN(w)) w = 0;
    svg.setAttribute('data-rb-width', String(Math.max(w, svg.clientWidth)));
  });
  if (document.body) document.body.setAttribute('data-rb-hidden', document.hidden ? 'true' : 'false');
  return document.documentElement.outerHTML;
})()`

// byRef is the element lookup prefix shared by the action scripts
const byRef = `const q = (ref) => document.querySelector('[data-rb-ref="' + ref + '"]');`

// activateScript dispatches a full gesture on the element
const activateScript = `((ref, nested) => {
  ` + byRef + `
  let el = q(ref);
  if (el && nested) el = el.querySelector(nested);
  if (!el) return false;
  const opts = {bubbles: true, cancelable: true, view: window};
  if (typeof TouchEvent !== 'undefined') {
    try {
      el.dispatchEvent(new TouchEvent('touchstart', opts));
      el.dispatchEvent(new TouchEvent('touchend', opts));
    } catch (e) {}
  }
  el.dispatchEvent(new MouseEvent('mousedown', opts));
  el.dispatchEvent(new MouseEvent('mouseup', opts));
  el.click();
  return true;
})(%s, %s)`

const clickScript = `((ref) => {
  ` + byRef + `
  const el = q(ref);
  if (!el) return false;
  el.click();
  return true;
})(%s)`

const scrollScript = `((ref) => {
  ` + byRef + `
  const el = q(ref);
  if (!el) return false;
  el.style.transform = 'none';
  el.scrollIntoView({block: 'center', inline: 'center'});
  return true;
})(%s)`

const dismissScript = `(() => { document.body.click(); return true; })()`

const hidePostScript = `((ref, levels) => {
  ` + byRef + `
  const btn = q(ref);
  if (!btn) return false;
  let c = btn.parentElement;
  for (let k = 0; k < levels; k++) { if (c && c.parentElement) c = c.parentElement; }
  if (c) c.style.display = 'none';
  return true;
})(%s, %d)`

// markerGlyphs renders marker state without stylesheet support
const markerGlyphs = `{unchecked: '☐', checked: '☑', finished: '✓'}`

const injectMarkerScript = `((ref, user, state) => {
  ` + byRef + `
  const btn = q(ref);
  if (!btn || !btn.parentElement) return false;
  btn.setAttribute('data-rb-checked', 'true');
  if (btn.parentElement.querySelector('.rb-marker')) return true;
  btn.style.transition = 'transform 0.2s';
  btn.style.transform = 'translateX(-45px)';
  const m = document.createElement('div');
  m.className = 'rb-marker';
  m.setAttribute('data-rb-for', ref);
  m.setAttribute('data-rb-user', user);
  m.setAttribute('data-rb-state', state);
  m.style.cssText = 'cursor:pointer;font-size:20px;line-height:24px;width:24px;text-align:center;';
  m.textContent = (` + markerGlyphs + `)[state] || '';
  m.addEventListener('touchend', (e) => e.stopPropagation());
  m.addEventListener('click', (e) => {
    e.stopPropagation();
    e.preventDefault();
    try { window.rbEvent(JSON.stringify({type: 'marker', ref: ref, user: user})); } catch (err) {}
  });
  try {
    if (window.getComputedStyle(btn.parentElement).position === 'static') btn.parentElement.style.position = 'relative';
    btn.parentElement.insertBefore(m, btn);
  } catch (e) {}
  return true;
})(%s, %s, %s)`

const setMarkerStateScript = `((ref, state) => {
  const m = document.querySelector('.rb-marker[data-rb-for="' + ref + '"]');
  if (!m) return false;
  m.setAttribute('data-rb-state', state);
  m.textContent = (` + markerGlyphs + `)[state] || '';
  return true;
})(%s, %s)`

const statusScript = `((title, line) => {
  document.title = title;
  let el = document.getElementById('rb-worker-status');
  if (!el) {
    el = document.createElement('div');
    el.id = 'rb-worker-status';
    el.style.cssText = 'position:fixed;top:0;left:0;right:0;z-index:999999;background:#111;color:#4cd964;font:bold 16px system-ui,sans-serif;padding:12px;';
    (document.body || document.documentElement).appendChild(el);
  }
  el.textContent = line;
  return true;
})(%s, %s)`

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func script(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
