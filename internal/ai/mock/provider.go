package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/devro-ai/devro/internal/ai"
)

// Provider is a mock generation provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	GenerateResponse *ai.GeneratedProject
	GenerateError    error

	// Call tracking for testing
	GenerateCalls int
	LastParams    ai.GenerateParams
}

// New creates a new mock provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// GenerateProject returns a canned project of the requested kind
func (p *Provider) GenerateProject(ctx context.Context, params ai.GenerateParams) (*ai.GeneratedProject, error) {
	p.GenerateCalls++
	p.LastParams = params

	// If a custom response or error is set, use it
	if p.GenerateError != nil {
		return nil, p.GenerateError
	}
	if p.GenerateResponse != nil {
		return p.GenerateResponse, nil
	}

	usage := ai.UsageInfo{
		Model:        "mock-generator-v1",
		InputTokens:  420,
		OutputTokens: 1850,
		Duration:     150 * time.Millisecond,
	}

	if params.Kind == ai.KindReact {
		return &ai.GeneratedProject{
			Kind: ai.KindReact,
			Files: []ai.ProjectFile{
				{Path: "package.json", Content: reactPackageJSON},
				{Path: "vite.config.js", Content: reactViteConfig},
				{Path: "index.html", Content: reactIndexHTML},
				{Path: "src/main.jsx", Content: reactMain},
				{Path: "src/App.jsx", Content: reactApp},
				{Path: "src/App.css", Content: "#root { max-width: 960px; margin: 0 auto; }\n"},
				{Path: "src/index.css", Content: "body { margin: 0; font-family: system-ui, sans-serif; }\n"},
			},
			Usage: usage,
		}, nil
	}

	return &ai.GeneratedProject{
		Kind: ai.KindHTML,
		Files: []ai.ProjectFile{
			{Path: "index.html", Content: htmlPage},
		},
		Usage: usage,
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.GenerateCalls = 0
	p.LastParams = ai.GenerateParams{}
	p.GenerateResponse = nil
	p.GenerateError = nil
}

const htmlPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Sunrise Bakery</title>
<style>
  body { margin: 0; font-family: Georgia, serif; color: #3b2b20; background: #fdf8f2; }
  header { padding: 4rem 2rem; text-align: center; background: #f3e3ce; }
  h1 { margin: 0; font-size: 2.5rem; }
  main { max-width: 720px; margin: 0 auto; padding: 2rem; }
  .cta { display: inline-block; margin-top: 1rem; padding: 0.75rem 1.5rem; background: #b9793f; color: #fff; text-decoration: none; border-radius: 4px; }
</style>
</head>
<body>
<header>
  <h1>Sunrise Bakery</h1>
  <p>Fresh sourdough, pastries and coffee since 1998.</p>
  <a class="cta" href="#visit">Visit us</a>
</header>
<main id="visit">
  <h2>Find us</h2>
  <p>12 Baker Street, open daily 7am to 3pm.</p>
</main>
</body>
</html>
`

const reactPackageJSON = `{
  "name": "generated-site",
  "private": true,
  "version": "0.1.0",
  "type": "module",
  "scripts": {
    "dev": "vite",
    "build": "vite build",
    "preview": "vite preview"
  },
  "dependencies": {
    "react": "^18.3.0",
    "react-dom": "^18.3.0"
  },
  "devDependencies": {
    "@vitejs/plugin-react": "^4.3.0",
    "vite": "^5.4.0"
  }
}
`

const reactViteConfig = `import { defineConfig } from 'vite'
import react from '@vitejs/plugin-react'

export default defineConfig({
  plugins: [react()],
})
`

const reactIndexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Generated Site</title>
</head>
<body>
<div id="root"></div>
<script type="module" src="/src/main.jsx"></script>
</body>
</html>
`

const reactMain = `import React from 'react'
import ReactDOM from 'react-dom/client'
import App from './App.jsx'
import './index.css'

ReactDOM.createRoot(document.getElementById('root')).render(
  <React.StrictMode>
    <App />
  </React.StrictMode>,
)
`

const reactApp = `import './App.css'

function App() {
  return (
    <main>
      <h1>Sunrise Bakery</h1>
      <p>Fresh sourdough, pastries and coffee since 1998.</p>
    </main>
  )
}

export default App
`
