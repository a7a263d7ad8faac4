package main

import (
	"net/http"
)

// dashboardHandler serves a self-refreshing page over GET /metrics and GET /events.
func dashboardHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>SignalFence Dashboard</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #1f2937 0%, #7f1d1d 100%);
            min-height: 100vh;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
        }
        .header {
            text-align: center;
            color: white;
            margin-bottom: 30px;
        }
        .header h1 {
            font-size: 2.5em;
            margin-bottom: 10px;
        }
        .header p {
            opacity: 0.9;
            font-size: 1.1em;
        }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 30px;
        }
        .stat-card {
            background: white;
            border-radius: 12px;
            padding: 25px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.1);
            transition: transform 0.2s;
        }
        .stat-card:hover {
            transform: translateY(-5px);
        }
        .stat-label {
            color: #666;
            font-size: 0.9em;
            text-transform: uppercase;
            letter-spacing: 1px;
            margin-bottom: 10px;
        }
        .stat-value {
            font-size: 2.5em;
            font-weight: bold;
            color: #333;
        }
        .stat-value.success { color: #10b981; }
        .stat-value.danger { color: #ef4444; }
        .stat-value.info { color: #3b82f6; }
        .stat-value.warning { color: #f59e0b; }
        .stat-sublabel {
            margin-top: 8px;
            font-size: 0.9em;
            color: #666;
            font-weight: normal;
        }
        .table-card {
            background: white;
            border-radius: 12px;
            padding: 25px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.1);
        }
        .table-card h2 {
            margin-bottom: 20px;
            color: #333;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th {
            text-align: left;
            padding: 12px;
            background: #f3f4f6;
            color: #666;
            font-weight: 600;
            text-transform: uppercase;
            font-size: 0.85em;
            letter-spacing: 0.5px;
        }
        td {
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        tr:last-child td {
            border-bottom: none;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85em;
            font-weight: 600;
        }
        .badge.LOW { background: #e0f2fe; color: #075985; }
        .badge.MEDIUM { background: #fef3c7; color: #92400e; }
        .badge.HIGH { background: #fee2e2; color: #991b1b; }
        .badge.CRITICAL { background: #7f1d1d; color: white; }
        .badge.mode { background: #f3f4f6; color: #374151; }
        .refresh-indicator {
            position: fixed;
            top: 20px;
            right: 20px;
            background: white;
            padding: 10px 20px;
            border-radius: 20px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            font-size: 0.9em;
            color: #666;
        }
    </style>
</head>
<body>
    <div class="refresh-indicator" id="refreshIndicator">
        Auto-refresh: <span id="countdown">5</span>s
    </div>

    <div class="container">
        <div class="header">
            <h1>🛡️ SignalFence</h1>
            <p>Request Admission Dashboard</p>
        </div>

        <div class="stats-grid">
            <div class="stat-card">
                <div class="stat-label">Total Requests</div>
                <div class="stat-value info" id="totalRequests">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Blocked</div>
                <div class="stat-value danger" id="blockedRequests">0</div>
                <div class="stat-sublabel" id="blockRate">0% block rate</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Rate Limit Hits</div>
                <div class="stat-value warning" id="rateLimitHits">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Auth Failures</div>
                <div class="stat-value warning" id="authFailures">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Bot Detections</div>
                <div class="stat-value warning" id="botDetections">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">DDoS Attempts</div>
                <div class="stat-value danger" id="ddosAttempts">0</div>
            </div>
        </div>

        <div class="table-card">
            <h2>Recent Security Events</h2>
            <table>
                <thead>
                    <tr>
                        <th>Time</th>
                        <th>IP</th>
                        <th>Request</th>
                        <th>Type</th>
                        <th>Severity</th>
                        <th>Rule</th>
                        <th>Mode</th>
                    </tr>
                </thead>
                <tbody id="eventsTable">
                    <tr>
                        <td colspan="7" style="text-align: center; color: #999;">
                            Loading...
                        </td>
                    </tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        const refreshSeconds = 5;
        let countdown = refreshSeconds;
        let countdownInterval;

        function escapeHTML(s) {
            return String(s).replace(/[&<>"']/g, c => ({
                '&': '&amp;', '<': '&lt;', '>': '&gt;', '"': '&quot;', "'": '&#39;'
            })[c]);
        }

        async function refresh() {
            try {
                const [metrics, events] = await Promise.all([
                    fetch('/metrics').then(r => r.json()),
                    fetch('/events?limit=25').then(r => r.json()),
                ]);
                updateStats(metrics);
                updateEvents(events);
            } catch (error) {
                console.error('Failed to refresh dashboard:', error);
            }
        }

        function updateStats(data) {
            for (const id of ['totalRequests', 'blockedRequests', 'rateLimitHits',
                              'authFailures', 'botDetections', 'ddosAttempts']) {
                document.getElementById(id).textContent = (data[id] || 0).toLocaleString();
            }
            document.getElementById('blockRate').textContent =
                ((data.blockRate || 0) * 100).toFixed(1) + '% block rate';
        }

        function updateEvents(events) {
            const tbody = document.getElementById('eventsTable');
            if (!events || events.length === 0) {
                tbody.innerHTML = ` + "`" + `
                    <tr>
                        <td colspan="7" style="text-align: center; color: #999;">
                            No security events yet
                        </td>
                    </tr>
                ` + "`" + `;
                return;
            }
            tbody.innerHTML = events.map(ev => ` + "`" + `
                <tr>
                    <td>${new Date(ev.timestamp).toLocaleTimeString()}</td>
                    <td><strong>${escapeHTML(ev.ip)}</strong></td>
                    <td>${escapeHTML(ev.method)} ${escapeHTML(ev.path)}</td>
                    <td>${escapeHTML(ev.type)}</td>
                    <td><span class="badge ${escapeHTML(ev.severity)}">${escapeHTML(ev.severity)}</span></td>
                    <td title="${escapeHTML(ev.reason)}">${escapeHTML(ev.ruleId)}</td>
                    <td><span class="badge mode">${escapeHTML(ev.mode)}</span></td>
                </tr>
            ` + "`" + `).join('');
        }

        function startCountdown() {
            countdown = refreshSeconds;
            document.getElementById('countdown').textContent = countdown;

            if (countdownInterval) clearInterval(countdownInterval);

            countdownInterval = setInterval(() => {
                countdown = Math.max(0, countdown - 1);
                document.getElementById('countdown').textContent = countdown;
            }, 1000);
        }

        refresh();
        startCountdown();

        setInterval(() => {
            refresh();
            startCountdown();
        }, refreshSeconds * 1000);
    </script>
</body>
</html>`
