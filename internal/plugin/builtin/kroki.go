package builtin

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"html"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/dgallion1/docrender/internal/plugin"
)

type krokiConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// Kroki claims fenced code blocks with a kroki- language prefix, e.g.
// kroki-plantuml or kroki-mermaid, and turns them into an image backed by
// a kroki server. The diagram source travels in the URL as deflated,
// base64url-encoded text, so rendering needs no round trip here.
type Kroki struct {
	mu  sync.RWMutex
	cfg krokiConfig
}

func NewKroki() *Kroki {
	k := &Kroki{}
	_ = mapstructure.Decode(k.Defaults(), &k.cfg)
	return k
}

func (k *Kroki) ID() string { return "kroki" }

func (k *Kroki) Defaults() map[string]any {
	return map[string]any{"endpoint": "https://kroki.io"}
}

func (k *Kroki) Transforms() []plugin.Transform { return nil }

func (k *Kroki) HandleCodeBlock(language, code string) (string, bool) {
	diagramType, ok := strings.CutPrefix(language, "kroki-")
	if !ok || diagramType == "" {
		return "", false
	}
	url, err := k.DiagramURL(diagramType, code)
	if err != nil {
		return "", false
	}
	return `<img class="kroki" src="` + html.EscapeString(url) +
		`" alt="` + html.EscapeString(diagramType) + ` diagram">` + "\n", true
}

// DiagramURL builds the kroki SVG URL for a diagram source.
func (k *Kroki) DiagramURL(diagramType, source string) (string, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write([]byte(source)); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	payload := base64.URLEncoding.EncodeToString(buf.Bytes())

	k.mu.RLock()
	endpoint := strings.TrimRight(k.cfg.Endpoint, "/")
	k.mu.RUnlock()
	return endpoint + "/" + diagramType + "/svg/" + payload, nil
}

func (k *Kroki) Activate(ctx context.Context, pc plugin.Context) error {
	k.OnSettingsChange(pc.Settings)
	return nil
}

func (k *Kroki) Deactivate(ctx context.Context) error { return nil }

func (k *Kroki) OnSettingsChange(settings map[string]any) {
	var cfg krokiConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return
	}
	k.mu.Lock()
	k.cfg = cfg
	k.mu.Unlock()
}

// API exposes the URL builder so hosts can link diagrams outside renders.
func (k *Kroki) API() map[string]any {
	return map[string]any{
		"diagram_url": k.DiagramURL,
	}
}
