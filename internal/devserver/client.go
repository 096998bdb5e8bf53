package devserver

import (
	"bytes"
)

const (
	eventsPath = "/__assetweaver/events"
	clientPath = "/__assetweaver/client.js"
)

// clientJS subscribes to the event stream. "inject" events re-fetch
// matching stylesheets; every other change reloads the page.
const clientJS = `(function () {
  if (!window.EventSource) return;
  var source = new EventSource("` + eventsPath + `");
  source.addEventListener("reload", function () { window.location.reload(); });
  source.addEventListener("inject", function (e) {
    var msg = JSON.parse(e.data);
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    (msg.paths || []).forEach(function (p) {
      if (!/\.css$/.test(p)) return;
      for (var i = 0; i < links.length; i++) {
        var url = new URL(links[i].href, window.location.href);
        if (url.pathname === "/" + p) {
          url.searchParams.set("v", Date.now());
          links[i].href = url.toString();
        }
      }
    });
  });
})();
`

var clientTag = []byte(`<script src="` + clientPath + `"></script>`)

// injectClient inserts the client script tag before the last </body>, or
// appends it when the document has none.
func injectClient(doc []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(doc), []byte("</body>"))
	if i < 0 {
		return append(append([]byte(nil), doc...), clientTag...)
	}
	out := make([]byte, 0, len(doc)+len(clientTag))
	out = append(out, doc[:i]...)
	out = append(out, clientTag...)
	return append(out, doc[i:]...)
}
