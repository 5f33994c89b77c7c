// Package paywall renders the human-facing payment page shown to browsers
// and rewrites it for tokens other than USDC.
package paywall

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

//go:embed static/paywall_adapter.js
var adapterSource string

var (
	adapterOnce   sync.Once
	adapterScript string
)

// AdapterScript returns the adapter JavaScript. It is loaded once and shared
// read-only by every request.
func AdapterScript() string {
	adapterOnce.Do(func() {
		adapterScript = strings.TrimSpace(adapterSource)
	})
	return adapterScript
}

// DisplayToken tells the adapter script which token the page is priced in.
type DisplayToken struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address,omitempty"`
	Decimals int    `json:"decimals"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Native   bool   `json:"native,omitempty"`
}

// InjectAdapter declares the display token and amount before </head> and
// appends the adapter script before </body>, or at the end when the page has
// no body close tag. A nil token returns html unchanged.
func InjectAdapter(html string, token *DisplayToken, displayAmount string) (string, error) {
	if token == nil {
		return html, nil
	}

	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("failed to marshal display token: %w", err)
	}
	if displayAmount == "" {
		displayAmount = "0"
	}

	head := fmt.Sprintf("\n<script>\nwindow.__x402_token = %s;\nwindow.__x402_display_amount = %s;\n</script>\n",
		tokenJSON, displayAmount)
	body := fmt.Sprintf("\n<script>\n%s\n</script>\n", AdapterScript())

	html = strings.Replace(html, "</head>", head+"</head>", 1)
	if strings.Contains(html, "</body>") {
		html = strings.Replace(html, "</body>", body+"</body>", 1)
	} else {
		html += body
	}
	return html, nil
}

var browserIndicators = []string{"Mozilla/", "Chrome/", "Safari/", "Firefox/", "Edge/", "Opera/"}

// IsBrowserRequest reports whether the request comes from a web browser:
// it must accept HTML and carry a browser User-Agent.
func IsBrowserRequest(h http.Header) bool {
	userAgent := h.Get("User-Agent")
	if userAgent == "" {
		return false
	}
	if !strings.Contains(h.Get("Accept"), "text/html") {
		return false
	}

	for _, indicator := range browserIndicators {
		if strings.Contains(userAgent, indicator) {
			return true
		}
	}
	return false
}
