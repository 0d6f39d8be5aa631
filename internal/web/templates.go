package web

import (
	"html/template"
	"sync"
)

var dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>HoneyPulse Dashboard</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }

        :root {
            --bg-primary: #0a0f0a;
            --bg-card: rgba(0, 40, 0, 0.4);
            --border-color: #1a4a1a;
            --text-primary: #00ff41;
            --text-dim: #336633;
            --danger: #ff3333;
        }

        body {
            font-family: 'JetBrains Mono', 'Fira Code', monospace;
            background: var(--bg-primary);
            color: var(--text-primary);
            padding: 24px;
        }
        h1 { margin-bottom: 4px; }
        .sub { color: var(--text-dim); margin-bottom: 20px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(320px, 1fr)); gap: 16px; }
        .card {
            background: var(--bg-card);
            border: 1px solid var(--border-color);
            border-radius: 6px;
            padding: 16px;
        }
        .stat { font-size: 2.2em; }
        .error { color: var(--danger); }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 4px 6px; border-bottom: 1px solid var(--border-color); }
        #live { max-height: 320px; overflow-y: auto; font-size: 0.85em; }
        #live div { padding: 2px 0; border-bottom: 1px dashed var(--border-color); white-space: pre-wrap; word-break: break-all; }
    </style>
</head>
<body>
    <h1>HoneyPulse</h1>
    <div class="sub">Monitoring ports {{range $i, $p := .Ports}}{{if $i}}, {{end}}{{$p}}{{end}} &middot; logs in {{.LogDir}}</div>
    <div id="error" class="error"></div>

    <div class="grid">
        <div class="card"><div>Total attacks</div><div class="stat" id="total">-</div></div>
        <div class="card"><div>Top attacker score</div><div class="stat" id="score">-</div></div>
        <div class="card"><div>Updated</div><div id="updated">-</div></div>
    </div>

    <div class="grid" style="margin-top:16px">
        <div class="card"><h3>Ports</h3><table id="ports"></table></div>
        <div class="card"><h3>Top payloads</h3><table id="payloads"></table></div>
    </div>

    <div class="grid" style="margin-top:16px">
        <div class="card"><h3>Attacks by hour</h3><canvas id="timeline"></canvas></div>
        <div class="card"><h3>Live activity</h3><div id="live"></div></div>
    </div>

    <script>
        let chart;

        function cell(tag, text) {
            const el = document.createElement(tag);
            el.textContent = text;
            return el;
        }

        function fillTable(id, headers, rows) {
            const table = document.getElementById(id);
            table.innerHTML = '';
            const head = document.createElement('tr');
            headers.forEach(h => head.appendChild(cell('th', h)));
            table.appendChild(head);
            rows.forEach(r => {
                const tr = document.createElement('tr');
                r.forEach(v => tr.appendChild(cell('td', v)));
                table.appendChild(tr);
            });
        }

        async function loadData() {
            const res = await fetch('/api/honeypot-data');
            const data = await res.json();
            if (!res.ok) {
                document.getElementById('error').textContent = data.error;
                return;
            }
            document.getElementById('error').textContent = '';
            document.getElementById('total').textContent = data.totalAttacks;
            document.getElementById('score').textContent = data.attackerScore.toFixed(2);
            document.getElementById('updated').textContent = data.timestamp;

            fillTable('ports', ['Port', 'Service', 'Attacks', 'Unique payloads'],
                data.portStats.map(p => [p.port, p.name, p.attacks, p.uniquePayloads]));
            fillTable('payloads', ['Payload', 'Count'],
                data.payloadStats.map(p => [p.name, p.count]));

            const labels = data.timelineData.map(t => String(t.hour).padStart(2, '0'));
            const values = data.timelineData.map(t => t.attacks);
            if (chart) {
                chart.data.datasets[0].data = values;
                chart.update();
            } else {
                chart = new Chart(document.getElementById('timeline'), {
                    type: 'bar',
                    data: { labels: labels, datasets: [{ label: 'attacks', data: values, backgroundColor: '#00ff41' }] },
                    options: { plugins: { legend: { display: false } } }
                });
            }
        }

        function connectLive() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/api/live');
            ws.onmessage = ev => {
                const e = JSON.parse(ev.data);
                const line = document.createElement('div');
                line.textContent = e.record.timestamp + '  ' + e.record.remote_ip + ' -> ' +
                    e.record.port + '  ' + JSON.stringify(e.record.data);
                const live = document.getElementById('live');
                live.prepend(line);
                while (live.children.length > 200) live.removeChild(live.lastChild);
            };
            ws.onclose = () => setTimeout(connectLive, 5000);
        }

        loadData();
        connectLive();
        setInterval(loadData, 30000);
    </script>
</body>
</html>`

var (
	dashboardOnce sync.Once
	dashboardTmpl *template.Template
)

func getDashboardTemplate() *template.Template {
	dashboardOnce.Do(func() {
		dashboardTmpl = template.Must(template.New("dashboard.html").Parse(dashboardHTML))
	})
	return dashboardTmpl
}
