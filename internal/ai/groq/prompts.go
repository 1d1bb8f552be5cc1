package groq

import "fmt"

// systemPrompt is shared by both project kinds. The model must answer with a
// bare JSON object so the response can be parsed without stripping prose.
const systemPrompt = `You are an expert front-end developer. A user will describe a website in natural language and you will produce the complete source for it.

**Response Format:**
Return ONLY a JSON object with this exact structure, no markdown fences, no explanation:

{
  "files": [
    {"path": "relative/file/path", "content": "full file content"}
  ]
}

Every file must be complete and runnable as-is. Never truncate content or leave placeholder comments like "rest of the code here".`

// buildHTMLPrompt asks for a single self-contained page.
func buildHTMLPrompt(description string) string {
	return fmt.Sprintf(`Create a single-file website for the following description.

**Requirements:**
- Exactly one file: "index.html"
- All CSS inline in a <style> block in the <head>; no external stylesheets
- Any JavaScript inline in a <script> tag; no external scripts or CDN imports
- Modern, responsive, visually polished design
- Realistic placeholder copy appropriate to the described site, never lorem ipsum

**Site Description:**
%s`, description)
}

// buildReactPrompt asks for a minimal Vite + React scaffold.
func buildReactPrompt(description string) string {
	return fmt.Sprintf(`Create a Vite + React project for the following description.

**Requirements:**
- Include at minimum: "package.json", "vite.config.js", "index.html", "src/main.jsx", "src/App.jsx", "src/App.css", "src/index.css"
- Split the UI into components under "src/components/" where it keeps App.jsx readable
- package.json must list react, react-dom and vite with workable version ranges, plus dev/build/preview scripts
- Plain CSS only, no CSS frameworks or extra npm dependencies
- Modern, responsive, visually polished design
- Realistic placeholder copy appropriate to the described site, never lorem ipsum

**Site Description:**
%s`, description)
}
