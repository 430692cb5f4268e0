package api

import (
	"html/template"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

var splitPage = template.Must(template.New("split").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>tablesplit</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 32rem; margin: 1rem auto; padding: 0 1rem; }
table { width: 100%; border-collapse: collapse; }
td { padding: .25rem 0; }
td.amount { text-align: right; }
.error { color: #b00020; }
</style>
</head>
<body>
<h1>tablesplit</h1>
<table>
<tr><td>Total</td><td class="amount" id="total">-</td></tr>
<tr><td>Pago</td><td class="amount" id="paid">-</td></tr>
<tr><td>Em processamento</td><td class="amount" id="pending">-</td></tr>
<tr><td>Restante</td><td class="amount" id="remaining">-</td></tr>
</table>
<h2>Pagar minha parte</h2>
<form id="pay">
<input name="payer" placeholder="Seu nome" required>
<input name="shares" type="number" min="1" value="2" required>
<button type="submit">Dividir igualmente</button>
</form>
<p class="error" id="error"></p>
<script>
const token = {{.Token}};
let sessionId = null;

function render(st) {
  document.getElementById("total").textContent = st.totalAmount;
  document.getElementById("paid").textContent = st.paidAmount;
  document.getElementById("pending").textContent = st.pendingAmount;
  document.getElementById("remaining").textContent = st.remainingAmount;
}

async function loadStatus() {
  const res = await fetch("/api/share/" + encodeURIComponent(token));
  if (!res.ok) { document.getElementById("error").textContent = "Mesa não encontrada"; return; }
  sessionId = (await res.json()).session_id;
  const proto = location.protocol === "https:" ? "wss://" : "ws://";
  const ws = new WebSocket(proto + location.host + "/api/sessions/" + sessionId + "/ws");
  ws.onmessage = (ev) => render(JSON.parse(ev.data));
}

document.getElementById("pay").addEventListener("submit", async (ev) => {
  ev.preventDefault();
  const form = new FormData(ev.target);
  const res = await fetch("/api/sessions/" + sessionId + "/divisions", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({
      payer_name: form.get("payer"),
      strategy: {type: "equal", shares: Number(form.get("shares"))},
    }),
  });
  const body = await res.json();
  if (!res.ok) {
    document.getElementById("error").textContent = body.hint || body.error;
    if (body.status) render(body.status);
    return;
  }
  document.getElementById("error").textContent = "";
  if (body.checkoutUrl) location.href = body.checkoutUrl;
});

loadStatus();
</script>
</body>
</html>
`))

// handleWebInterface serves the guest page the share link points to.
func (a *API) handleWebInterface(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ Token string }{Token: mux.Vars(r)["token"]}
	if err := splitPage.Execute(w, data); err != nil {
		log.Printf("api: render split page: %v", err)
	}
}
