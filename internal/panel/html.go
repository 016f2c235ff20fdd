package panel

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>countdart panel</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; font-family: system-ui, sans-serif; background: #1f2328; color: #e6e6e6; }
        .app { display: grid; grid-template-columns: minmax(0, 3fr) minmax(260px, 1fr); gap: 16px; padding: 16px; }
        .panel { background: #2b3036; border-radius: 8px; padding: 12px; }
        .toolbar { display: flex; gap: 8px; align-items: center; margin-bottom: 10px; flex-wrap: wrap; }
        #canvas-wrapper { position: relative; width: 100%; }
        #canvas { width: 100%; height: auto; display: block; background: #000; cursor: crosshair; touch-action: none; }
        #lens { position: absolute; width: 100px; height: 100px; border-radius: 50%; display: none; pointer-events: none; border: 2px solid #fff; }
        #throws li, #notices li { font-family: monospace; margin: 2px 0; }
        .notice-error { color: #ff6b6b; }
        .notice-info { color: #69db7c; }
        #sketch { width: 100%; background: #fff; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="panel">
            <div class="toolbar">
                <label>Camera <input id="cam-id" size="4" value="1" list="cam-list"></label>
                <datalist id="cam-list"></datalist>
                <button type="button" id="btn-start">Start</button>
                <button type="button" id="btn-stop">Stop</button>
                <button type="button" id="btn-open">Open</button>
                <button type="button" id="btn-close">Close</button>
                <select id="view-mode">
                    <option value="raw">raw</option>
                    <option value="HomographyWarper">warped</option>
                    <option value="MotionDetector">motion</option>
                    <option value="ResultVisualizer">debug</option>
                </select>
                <button type="button" id="btn-save">Save calibration</button>
                <button type="button" id="btn-reset">Reset</button>
                <span id="view-state">closed</span>
            </div>
            <div id="canvas-wrapper">
                <img id="canvas" alt="Calibration view">
                <img id="lens" alt="">
            </div>
        </div>
        <div>
            <div class="panel">
                <h3>Throws</h3>
                <ol id="throws"></ol>
                <img id="sketch" alt="Board sketch">
            </div>
            <div class="panel" style="margin-top:16px;">
                <h3>Notifications</h3>
                <ul id="notices"></ul>
            </div>
        </div>
    </div>
    <script>
        const $ = (id) => document.getElementById(id);
        const canvas = $('canvas');
        const lens = $('lens');
        let camId = null;
        let lensPending = false;

        async function post(path, body) {
            const resp = await fetch(path, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: body === undefined ? undefined : JSON.stringify(body),
            });
            const data = await resp.json().catch(() => ({}));
            if (!resp.ok) {
                throw new Error(data.error || resp.statusText);
            }
            return data;
        }

        function sendEvent(type, extra) {
            if (!camId) return Promise.resolve(null);
            return post('/api/cams/' + camId + '/events', Object.assign({ type }, extra || {}))
                .catch(() => null);
        }

        function pointerPos(e) {
            const r = canvas.getBoundingClientRect();
            return { x: e.clientX - r.left, y: e.clientY - r.top };
        }

        async function updateLens() {
            if (lensPending || !camId) return;
            lensPending = true;
            try {
                const resp = await fetch('/api/cams/' + camId + '/magnifier', { cache: 'no-store' });
                if (resp.status === 204) {
                    lens.style.display = 'none';
                    return;
                }
                const blob = await resp.blob();
                lens.src = URL.createObjectURL(blob);
            } finally {
                lensPending = false;
            }
        }

        function placeLens(p) {
            if (!p || !p.visible) {
                lens.style.display = 'none';
                return;
            }
            lens.style.left = p.left + 'px';
            lens.style.top = p.top + 'px';
            lens.style.display = 'block';
            updateLens();
        }

        canvas.addEventListener('pointerdown', async (e) => {
            const res = await sendEvent('pointerdown', pointerPos(e));
            if (res && res.prevented) e.preventDefault();
        });
        canvas.addEventListener('pointermove', async (e) => {
            const res = await sendEvent('pointermove', pointerPos(e));
            if (res) {
                $('view-state').textContent = res.drag;
                placeLens(res.magnifier);
            }
        });
        canvas.addEventListener('pointerup', (e) => sendEvent('pointerup', pointerPos(e)));
        canvas.addEventListener('pointerleave', (e) => {
            lens.style.display = 'none';
            sendEvent('pointerleave', pointerPos(e));
        });
        canvas.addEventListener('dragstart', (e) => e.preventDefault());
        window.addEventListener('resize', () => sendEvent('resize', { width: $('canvas-wrapper').clientWidth }));
        window.addEventListener('scroll', () => sendEvent('scroll'));
        document.addEventListener('fullscreenchange', () =>
            sendEvent('fullscreenchange', { fullscreen: document.fullscreenElement !== null }));

        async function loadCams() {
            const resp = await fetch('/api/cams', { cache: 'no-store' }).catch(() => null);
            if (!resp || !resp.ok) return;
            const data = await resp.json();
            $('cam-list').replaceChildren(...(data.cams || []).map((cam) => {
                const opt = document.createElement('option');
                opt.value = cam.id;
                opt.label = (cam.name || 'cam ' + cam.id) + (cam.active ? ' (active)' : '');
                return opt;
            }));
        }
        for (const action of ['start', 'stop']) {
            $('btn-' + action).addEventListener('click', async () => {
                const id = $('cam-id').value.trim();
                await post('/api/cams/' + id + '/' + action).catch(() => null);
                loadCams();
            });
        }
        loadCams();

        $('btn-open').addEventListener('click', async () => {
            const id = $('cam-id').value.trim();
            try {
                const status = await post('/api/cams/' + id + '/open');
                camId = id;
                $('view-state').textContent = status.drag;
                $('view-mode').value = status.display.view;
                canvas.src = '/api/cams/' + id + '/canvas';
                sendEvent('resize', { width: $('canvas-wrapper').clientWidth });
            } catch (err) {
                $('view-state').textContent = err.message;
            }
        });
        $('btn-close').addEventListener('click', async () => {
            if (!camId) return;
            canvas.removeAttribute('src');
            await post('/api/cams/' + camId + '/close').catch(() => null);
            camId = null;
            $('view-state').textContent = 'closed';
        });
        $('view-mode').addEventListener('change', (e) => {
            if (camId) post('/api/cams/' + camId + '/view', { mode: e.target.value }).catch(() => null);
        });
        $('btn-save').addEventListener('click', () => {
            if (camId) post('/api/cams/' + camId + '/calibration').catch(() => null);
        });
        $('btn-reset').addEventListener('click', () => {
            if (camId) post('/api/cams/' + camId + '/calibration/reset').catch(() => null);
        });

        function renderThrows(event) {
            const list = $('throws');
            list.innerHTML = '';
            (event.window || []).forEach((t) => {
                const li = document.createElement('li');
                li.textContent = t.score + ' (' + Math.round(t.confidence * 100) + '%)';
                list.appendChild(li);
            });
            $('sketch').src = '/api/game/sketch?t=' + Date.now();
        }

        const games = new EventSource('/api/game/stream');
        games.onmessage = (e) => renderThrows(JSON.parse(e.data));

        const notices = new EventSource('/api/notifications/stream');
        notices.onmessage = (e) => {
            const n = JSON.parse(e.data);
            const li = document.createElement('li');
            li.className = n.kind === 'info' ? 'notice-info' : 'notice-error';
            li.textContent = n.title + ': ' + n.message;
            const list = $('notices');
            list.insertBefore(li, list.firstChild);
            while (list.children.length > 20) list.removeChild(list.lastChild);
        };

        $('sketch').src = '/api/game/sketch';
    </script>
</body>
</html>
`
