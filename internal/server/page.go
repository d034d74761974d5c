package server

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/tsxlive/internal/types"
)

const starterSource = `import React from "react";
import { createRoot } from "react-dom/client";
import { Line } from "@ant-design/plots";

const data = [
  { year: "2021", value: 3 },
  { year: "2022", value: 4 },
  { year: "2023", value: 3.5 },
];

function App() {
  return (
    <div>
      <h3>Hello from tsxlive</h3>
      <Line data={data} xField="year" yField="value" />
    </div>
  );
}

createRoot(document.getElementById("sandbox")).render(<App />);
`

// LanguageLabel is the display name of a language tag.
func LanguageLabel(lang types.Language) string {
	return cases.Upper(language.English).String(lang.Alias())
}

// page renders the playground. Compiled code is mounted the same way the
// browser host does it: the previous script is removed, and the new one
// hides define while it runs so the UMD envelope uses globals.
func (s *PreviewServer) page() templ.Component {
	cfg := s.config
	title := cases.Title(language.English).String(cfg.Preview.Title)

	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
		fmt.Fprintf(&b, "<title>%s</title>\n", templ.EscapeString(title))
		b.WriteString(pageStyle)
		for _, src := range cfg.Preview.Scripts {
			fmt.Fprintf(&b, "<script crossorigin src=\"%s\"></script>\n", templ.EscapeString(src))
		}
		b.WriteString("</head>\n<body>\n<header>")
		fmt.Fprintf(&b, "<h1>%s</h1>", templ.EscapeString(title))
		b.WriteString("<select id=\"language\">")
		for _, lang := range types.Languages() {
			selected := ""
			if lang == types.DefaultLanguage {
				selected = " selected"
			}
			fmt.Fprintf(&b, "<option value=\"%s\"%s>%s</option>",
				templ.EscapeString(string(lang)), selected, templ.EscapeString(LanguageLabel(lang)))
		}
		b.WriteString("</select><span id=\"status\">connecting</span></header>\n<main>\n")
		fmt.Fprintf(&b, "<textarea id=\"editor\" spellcheck=\"false\">%s</textarea>\n", templ.EscapeString(starterSource))
		b.WriteString("<section id=\"output\">")
		fmt.Fprintf(&b, "<div id=\"%s\"></div>", templ.EscapeString(cfg.Sandbox.ContainerID))
		b.WriteString("<pre id=\"diagnostic\" hidden></pre><details><summary>Server render</summary><div id=\"server-render\"></div><pre id=\"logs\"></pre></details>")
		b.WriteString("</section>\n</main>\n")
		fmt.Fprintf(&b, "<script>\nconst SCRIPT_ID = %q;\n%s</script>\n", cfg.Sandbox.ScriptID, pageScript)
		b.WriteString("</body>\n</html>\n")

		_, err := io.WriteString(w, b.String())
		return err
	})
}

const pageStyle = `<style>
body { margin: 0; font-family: system-ui, sans-serif; }
header { display: flex; gap: 1rem; align-items: center; padding: .5rem 1rem; border-bottom: 1px solid #ddd; }
header h1 { font-size: 1.1rem; margin: 0; }
main { display: grid; grid-template-columns: 1fr 1fr; height: calc(100vh - 3rem); }
#editor { font-family: ui-monospace, monospace; font-size: 13px; padding: 1rem; border: 0; border-right: 1px solid #ddd; resize: none; }
#output { padding: 1rem; overflow: auto; }
#diagnostic { color: #b00020; white-space: pre-wrap; }
</style>
`

const pageScript = `const editor = document.getElementById("editor");
const languageSelect = document.getElementById("language");
const statusEl = document.getElementById("status");
const diagnosticEl = document.getElementById("diagnostic");
const scheme = location.protocol === "https:" ? "wss" : "ws";
const socket = new WebSocket(scheme + "://" + location.host + "/ws");

function send() {
  socket.send(JSON.stringify({ type: "source", source: editor.value, language: languageSelect.value }));
}

function mount(code) {
  const previous = document.getElementById(SCRIPT_ID);
  if (previous) previous.remove();
  const script = document.createElement("script");
  script.id = SCRIPT_ID;
  script.textContent = "var __runnerDefine = window.define; window.define = null;" +
    "try {\n" + code + "\n} catch (e) { console.log(e); } finally { window.define = __runnerDefine; }";
  document.head.appendChild(script);
}

socket.addEventListener("open", () => { statusEl.textContent = "connected"; send(); });
socket.addEventListener("close", () => { statusEl.textContent = "disconnected"; });
socket.addEventListener("message", (event) => {
  const msg = JSON.parse(event.data);
  switch (msg.type) {
  case "session":
    statusEl.textContent = "session " + msg.session.slice(0, 8);
    break;
  case "compiled":
    diagnosticEl.hidden = true;
    mount(msg.code);
    break;
  case "diagnostic":
    diagnosticEl.hidden = false;
    diagnosticEl.textContent = msg.diagnostic.message;
    break;
  case "rendered":
    document.getElementById("server-render").innerHTML = msg.html || "";
    document.getElementById("logs").textContent =
      (msg.logs || []).map((l) => l.level + ": " + l.message).join("\n") + (msg.error ? "\n" + msg.error : "");
    break;
  case "error":
    console.warn(msg.error);
    break;
  }
});

editor.addEventListener("input", send);
languageSelect.addEventListener("change", send);
`
