// climbproxy is a thin reverse proxy in front of the processing backend.
// Every request is forwarded verbatim (method, path, query, headers and
// body) to the configured base URL, and the backend's status, headers
// and body are returned unchanged. Miscellaneous calls not covered by
// the client SDK go through here.
package main

import (
	"flag"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/climbinsight/climbinsight-go/internal/config"
)

// hopHeaders are not forwarded in either direction
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Te":                true,
	"Trailer":           true,
}

type proxy struct {
	baseURL    string
	httpClient *http.Client
}

func main() {
	var configPath, apiURL, listenAddr string

	flag.StringVar(&configPath, "config", "", "config file path (defaults are used when empty)")
	flag.StringVar(&apiURL, "url", "", "backend base URL (overrides config and environment)")
	flag.StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if apiURL != "" {
		cfg.Backend.BaseURL = apiURL
	}
	if listenAddr != "" {
		cfg.Proxy.ListenAddr = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	p := &proxy{
		baseURL: strings.TrimSuffix(cfg.Backend.BaseURL, "/"),
		// No client timeout: the result stream stays open until the
		// backend closes it
		httpClient: &http.Client{},
	}

	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "healthy"})
	})

	r.NoRoute(p.forward)

	log.Printf("proxying %s on %s", p.baseURL, cfg.Proxy.ListenAddr)
	if err := r.Run(cfg.Proxy.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

// forward relays one request to the backend and copies the response back
func (p *proxy) forward(c *gin.Context) {
	requestID := uuid.New().String()
	started := time.Now()

	target := p.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		target += "?" + c.Request.URL.RawQuery
	}

	var body io.Reader
	if c.Request.Method != http.MethodGet {
		body = c.Request.Body
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to build upstream request"})
		return
	}
	copyHeaders(req.Header, c.Request.Header)
	req.Header.Set("X-Request-Id", requestID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Printf("[%s] %s %s upstream error: %v", requestID, c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unreachable"})
		return
	}
	defer resp.Body.Close()

	copyHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	// Flush per chunk so event streams pass through without buffering
	if _, err := io.Copy(flushWriter{c.Writer}, resp.Body); err != nil {
		log.Printf("[%s] %s %s copy aborted: %v", requestID, c.Request.Method, c.Request.URL.Path, err)
		return
	}

	log.Printf("[%s] %s %s -> %d (%s)", requestID, c.Request.Method, c.Request.URL.Path,
		resp.StatusCode, time.Since(started).Round(time.Millisecond))
}

// flushWriter flushes after every write so long-lived streams are not
// held back by response buffering
type flushWriter struct {
	w gin.ResponseWriter
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil {
		fw.w.Flush()
	}
	return n, err
}

// copyHeaders copies all non-hop-by-hop headers
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
