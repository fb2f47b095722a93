package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// pageHelper installs window.__tabtune in a document, once. The argument is a
// fresh document token; it is kept only by the first install, so the token
// changes exactly when the document (and with it every element ID and gain
// node) is replaced.
//
// Element IDs live in a WeakMap on the page side; nothing is stored on the
// elements themselves. One AudioContext per document is reused for every gain
// stage and resumed if the page suspended it.
const pageHelper = `(function (token) {
  if (window.__tabtune) return true;
  const ids = new WeakMap();
  const els = new Map();
  const nodes = new Map();
  let next = 1;
  let ac = null;
  const api = {
    doc: token,
    el(id) {
      const ref = els.get(id);
      return ref ? ref.deref() || null : null;
    },
    media() {
      const out = [];
      document.querySelectorAll("video, audio").forEach((el) => {
        if (!ids.has(el)) {
          ids.set(el, next);
          els.set(next, new WeakRef(el));
          next++;
        }
        out.push({ id: ids.get(el), kind: el.tagName.toLowerCase(), src: el.currentSrc || el.src || "" });
      });
      return { doc: api.doc, elements: out };
    },
    setRate(rate) {
      document.querySelectorAll("video").forEach((v) => {
        v.playbackRate = rate;
        v.defaultPlaybackRate = rate;
      });
      return true;
    },
    resetVolume(id) {
      const el = api.el(id);
      if (!el) return false;
      el.volume = 1;
      el.muted = false;
      return true;
    },
    async boost(id, gain) {
      const el = api.el(id);
      if (!el) throw new Error("media element " + id + " is gone");
      if (!ac) ac = new AudioContext();
      if (ac.state === "suspended") await ac.resume();
      const existing = nodes.get(id);
      if (existing) {
        existing.gain.value = gain;
        return true;
      }
      const src = ac.createMediaElementSource(el);
      const node = ac.createGain();
      node.gain.value = gain;
      src.connect(node);
      node.connect(ac.destination);
      nodes.set(id, node);
      return true;
    },
    hasNode(id) {
      return nodes.has(id);
    },
    setGain(id, gain) {
      const node = nodes.get(id);
      if (!node) return false;
      node.gain.value = gain;
      return true;
    },
  };
  Object.defineProperty(window, "__tabtune", { value: api });
  return true;
})`

// pageCall builds an expression that installs the helper (if needed) and calls
// one of its methods with JSON-encoded arguments.
func pageCall(token, method string, args ...any) (string, error) {
	enc := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode %s argument %d: %w", method, i, err)
		}
		enc[i] = string(b)
	}
	tok, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s) && window.__tabtune.%s(%s)",
		pageHelper, tok, method, strings.Join(enc, ", ")), nil
}

// pageFocus reports whether a document is in front of the user.
const pageFocus = `({ visible: document.visibilityState === "visible", focused: document.hasFocus() })`

type focusResult struct {
	Visible bool `json:"visible"`
	Focused bool `json:"focused"`
}
