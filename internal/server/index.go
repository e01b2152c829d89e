package server

// indexHTML is the single-page front-end: a handle input and an EventSource
// consumer for the /analyze stream.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Skylens — who your follows follow</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: system-ui, sans-serif; margin: 0; background: #f3f4f6; }
        .wrap { max-width: 56rem; margin: 0 auto; padding: 2rem 1rem; }
        h1 { font-size: 1.75rem; }
        .card { background: #fff; border-radius: 0.5rem; box-shadow: 0 1px 3px rgba(0,0,0,.15); padding: 1.5rem; margin-bottom: 2rem; }
        .row { display: flex; gap: 1rem; }
        input { flex: 1; padding: 0.5rem; border: 1px solid #d1d5db; border-radius: 0.25rem; }
        button { background: #3b82f6; color: #fff; border: 0; padding: 0.5rem 1.5rem; border-radius: 0.25rem; cursor: pointer; }
        button:hover { background: #2563eb; }
        .muted { color: #6b7280; font-size: 0.875rem; }
        .error { color: #b91c1c; background: #fef2f2; border: 1px solid #fecaca; border-radius: 0.25rem; padding: 1rem; }
        .entry { display: flex; justify-content: space-between; padding: 0.5rem 0; border-bottom: 1px solid #e5e7eb; }
        a { color: #2563eb; text-decoration: none; }
    </style>
</head>
<body>
    <div class="wrap">
        <h1>Skylens</h1>
        <p class="muted">
            Enter your Bluesky handle to find out who those you follow themselves
            follow, that you don't yet.
        </p>

        <div class="card">
            <div class="row">
                <input type="text" id="handle" placeholder="Enter Bluesky handle (e.g., user.bsky.social)">
                <button onclick="startAnalysis()">Analyze</button>
            </div>
        </div>

        <div class="card">
            <div class="row" style="justify-content: space-between; margin-bottom: 1rem;">
                <h2 style="margin: 0; font-size: 1.125rem;">Results</h2>
                <span class="muted" id="progress"></span>
            </div>
            <div id="resultsList"></div>
        </div>
    </div>

    <script>
        let eventSource = null;

        function bskyUrl(handle) {
            return 'https://bsky.app/profile/' + handle;
        }

        function startAnalysis() {
            const input = document.getElementById('handle');
            let handle = input.value.trim();
            if (!handle) return;

            if (handle.startsWith('@')) handle = handle.slice(1);
            if (!handle.includes('.')) handle = handle + '.bsky.social';
            handle = handle.toLowerCase();
            input.value = handle;

            if (eventSource) eventSource.close();

            document.getElementById('resultsList').innerHTML =
                '<p class="muted">Starting analysis…</p>';
            document.getElementById('progress').textContent = '';

            eventSource = new EventSource('/analyze/' + handle);

            eventSource.addEventListener('update', function (e) {
                const data = JSON.parse(e.data);
                renderResults(data.results);
                document.getElementById('progress').textContent =
                    'Processed ' + data.processed_count + '/' + data.total_count + ' follows';
            });

            eventSource.addEventListener('error', function (e) {
                let message = 'Connection error. Please try again.';
                try { message = 'Error: ' + JSON.parse(e.data).error; } catch (err) {}
                document.getElementById('resultsList').innerHTML =
                    '<div class="error">' + message + '</div>';
            });
        }

        function renderResults(results) {
            const list = document.getElementById('resultsList');
            if (!results.length) {
                list.innerHTML = '<p class="muted">Nothing yet — still crawling.</p>';
                return;
            }
            list.innerHTML = results.map(function (r) {
                return '<div class="entry">' +
                    '<a href="' + bskyUrl(r.handle) + '" target="_blank">' + r.handle + '</a>' +
                    '<span class="muted">followed by ' + r.count + ' of your follows</span>' +
                    '</div>';
            }).join('');
        }
    </script>
</body>
</html>
`
