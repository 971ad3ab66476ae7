// Package pages holds the static HTML the daemon serves directly.
package pages

// Index is the landing page: a plain map of the command surface for anyone
// poking at the daemon with a browser.
var Index = `
<!DOCTYPE html>
<html>
<head>
    <title>moodsync</title>
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 20px;
        }
        code {
            background: #f4f4f4;
            padding: 2px 5px;
        }
    </style>
</head>
<body>
    <h1>moodsync player daemon</h1>
    <p>Running. The UI talks to these endpoints:</p>
    <ul>
        <li><code>GET /player/state</code> — transport snapshot</li>
        <li><code>POST /player/load</code>, <code>/player/playlist</code>, <code>/player/playpause</code>, <code>/player/seek</code>, <code>/player/next</code>, <code>/player/previous</code>, <code>/player/volume</code>, <code>/player/mute</code></li>
        <li><code>GET /catalog/search?q=</code> — federated track search</li>
        <li><code>GET /mood/{mood}</code> — playlists matching a mood</li>
        <li><code>GET/POST /library/tracks</code>, <code>GET /playlists</code></li>
        <li><code>POST /rooms/private</code> — start a synced session</li>
        <li><code>GET /rooms/{id}/ws</code> — live room messages</li>
    </ul>
</body>
</html>`
