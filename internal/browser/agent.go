package browser

// eventBinding is the CDP binding name the page agent posts input events
// through.
const eventBinding = "__fitlensEvent"

// agentJS installs the page agent: node path helpers shared with the Go
// snapshot, the highlight overlay, toasts, and the capture-phase input
// listeners. Idempotent; re-evaluation is a no-op.
const agentJS = `(() => {
  if (window.__fitlens) return;

  const nodePath = (el) => {
    if (!el || !(el instanceof Element)) return null;
    const path = [];
    let node = el;
    while (node !== document.documentElement) {
      const parent = node.parentElement;
      if (!parent) return null;
      let idx = 0;
      for (const child of parent.children) {
        if (child === node) break;
        idx++;
      }
      path.unshift(idx);
      node = parent;
    }
    return path;
  };

  const nodeAt = (path) => {
    if (!Array.isArray(path)) return null;
    let node = document.documentElement;
    for (const idx of path) {
      node = node.children[idx];
      if (!node) return null;
    }
    return node;
  };

  const HIGHLIGHT_ID = 'fitlens-capture-highlight';
  const TOAST_ID = 'fitlens-capture-toast';

  const mountOverlay = () => {
    if (!document.body) return false;
    if (document.getElementById(HIGHLIGHT_ID)) return true;
    const box = document.createElement('div');
    box.id = HIGHLIGHT_ID;
    box.style.cssText =
      'position:fixed;display:none;pointer-events:none;z-index:2147483646;' +
      'border:2px solid #7c3aed;border-radius:6px;' +
      'box-shadow:0 0 0 4000px rgba(17,12,34,0.25);' +
      'transition:all 80ms ease-out;';
    document.body.appendChild(box);
    return true;
  };

  const updateOverlay = (r) => {
    const box = document.getElementById(HIGHLIGHT_ID);
    if (!box) return;
    if (!r || !r.width || !r.height) {
      box.style.display = 'none';
      return;
    }
    box.style.display = 'block';
    box.style.left = r.x + 'px';
    box.style.top = r.y + 'px';
    box.style.width = r.width + 'px';
    box.style.height = r.height + 'px';
  };

  const removeOverlay = () => {
    const box = document.getElementById(HIGHLIGHT_ID);
    if (box) box.remove();
    const toast = document.getElementById(TOAST_ID);
    if (toast) toast.remove();
  };

  const toast = (message, durationMs) => {
    if (!document.body) return;
    let el = document.getElementById(TOAST_ID);
    if (!el) {
      el = document.createElement('div');
      el.id = TOAST_ID;
      el.style.cssText =
        'position:fixed;left:50%;bottom:32px;transform:translateX(-50%);' +
        'pointer-events:none;z-index:2147483647;padding:10px 18px;' +
        'background:#1f1147;color:#f5f3ff;border-radius:999px;' +
        'font:13px/1.4 system-ui,sans-serif;box-shadow:0 4px 14px rgba(0,0,0,0.3);';
      document.body.appendChild(el);
    }
    el.textContent = message;
    clearTimeout(el.__fitlensTimer);
    el.__fitlensTimer = setTimeout(() => el.remove(), durationMs);
  };

  const post = (event) => {
    if (typeof window.__fitlensEvent === 'function') {
      window.__fitlensEvent(JSON.stringify(event));
    }
  };

  let handlers = null;

  const install = () => {
    if (handlers) return;
    handlers = {
      pointermove: (e) => post({ kind: 'move', x: e.clientX, y: e.clientY }),
      scroll: () => post({ kind: 'scroll' }),
      pointerdown: (e) => {
        e.preventDefault();
        e.stopImmediatePropagation();
      },
      click: (e) => {
        e.preventDefault();
        e.stopImmediatePropagation();
        post({ kind: 'click', x: e.clientX, y: e.clientY });
      },
      keydown: (e) => {
        if (e.key === 'Escape') {
          e.preventDefault();
          e.stopImmediatePropagation();
        }
        post({ kind: 'key', key: e.key });
      },
      visibilitychange: () => {
        if (document.visibilityState === 'hidden') post({ kind: 'hidden' });
      },
    };
    window.addEventListener('pointermove', handlers.pointermove, true);
    window.addEventListener('scroll', handlers.scroll, true);
    window.addEventListener('pointerdown', handlers.pointerdown, true);
    window.addEventListener('click', handlers.click, true);
    window.addEventListener('keydown', handlers.keydown, true);
    document.addEventListener('visibilitychange', handlers.visibilitychange, true);
  };

  const teardown = () => {
    if (!handlers) return;
    window.removeEventListener('pointermove', handlers.pointermove, true);
    window.removeEventListener('scroll', handlers.scroll, true);
    window.removeEventListener('pointerdown', handlers.pointerdown, true);
    window.removeEventListener('click', handlers.click, true);
    window.removeEventListener('keydown', handlers.keydown, true);
    document.removeEventListener('visibilitychange', handlers.visibilitychange, true);
    handlers = null;
  };

  const fetchDataURI = async (url) => {
    const resp = await fetch(url, { credentials: 'include' });
    if (!resp.ok) throw new Error('fetch failed: status ' + resp.status);
    const blob = await resp.blob();
    return await new Promise((resolve, reject) => {
      const reader = new FileReader();
      reader.onload = () => resolve(reader.result);
      reader.onerror = () => reject(reader.error || new Error('read failed'));
      reader.readAsDataURL(blob);
    });
  };

  window.__fitlens = {
    nodePath, nodeAt,
    mountOverlay, updateOverlay, removeOverlay, toast,
    install, teardown, fetchDataURI,
  };
})();`
