// Package browser serves commands against Chrome pages driven over the
// DevTools protocol. Each page is one addressable context, identified by its
// target id.
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/vdavid/tauri-mcp/internal/dispatch"
	"github.com/vdavid/tauri-mcp/internal/protocol"
)

// DefaultScriptTimeout bounds execute_js unless args.timeout is given.
const DefaultScriptTimeout = 5 * time.Second

// DefaultConsoleLimit is how many console entries each page keeps.
const DefaultConsoleLimit = 25

// Options configures Open.
type Options struct {
	// ControlURL attaches to a running browser (http or ws DevTools URL).
	// Empty launches a new one.
	ControlURL string
	Headless   bool
	// StartURL is opened in a fresh page when the browser has none.
	StartURL string
	// ConsoleLimit caps the console entries kept per page (0 means
	// DefaultConsoleLimit).
	ConsoleLimit int
	// NoSandbox launches Chrome without its sandbox, which it refuses to run
	// as root.
	NoSandbox bool
	Logger    zerolog.Logger
}

// Host is a dispatch.Host backed by a browser.
type Host struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	log      zerolog.Logger

	// ctx outlives every console subscription
	ctx          context.Context
	consoleLimit int
	mu           sync.Mutex
	consoles     map[proto.TargetTargetID]*consoleBuffer
}

// Open connects to or launches a browser.
func Open(ctx context.Context, opts Options) (*Host, error) {
	h := &Host{
		log:          opts.Logger,
		ctx:          ctx,
		consoleLimit: opts.ConsoleLimit,
		consoles:     make(map[proto.TargetTargetID]*consoleBuffer),
	}
	if h.consoleLimit <= 0 {
		h.consoleLimit = DefaultConsoleLimit
	}

	controlURL := opts.ControlURL
	if controlURL == "" {
		h.launcher = launcher.New().Headless(opts.Headless).NoSandbox(opts.NoSandbox)
		u, err := h.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		h.log.Info().Str("url", u).Bool("headless", opts.Headless).Msg("launched browser")
	} else {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", controlURL, err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		h.kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	h.browser = b

	pages, err := b.Pages()
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 && opts.StartURL != "" {
		p, err := b.Page(proto.TargetCreateTarget{URL: opts.StartURL})
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("open %s: %w", opts.StartURL, err)
		}
		pages = append(pages, p)
	}
	for _, p := range pages {
		h.watch(p)
	}
	return h, nil
}

// Close disconnects, and stops the browser if it was launched by Open.
func (h *Host) Close() error {
	var err error
	if h.browser != nil && h.launcher != nil {
		err = h.browser.Close()
	}
	h.kill()
	return err
}

func (h *Host) kill() {
	if h.launcher != nil {
		h.launcher.Kill()
	}
}

// Targets implements dispatch.Host. Ids are sorted for a stable default.
func (h *Host) Targets(ctx context.Context) ([]string, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pages))
	for _, p := range pages {
		h.watch(p)
		ids = append(ids, string(p.TargetID))
	}
	sort.Strings(ids)
	return ids, nil
}

// Focused implements dispatch.Host: the first page whose document has focus.
func (h *Host) Focused(ctx context.Context) string {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return ""
	}
	for _, p := range pages {
		if focused, _ := h.hasFocus(ctx, p); focused {
			return string(p.TargetID)
		}
	}
	return ""
}

func (h *Host) hasFocus(ctx context.Context, p *rod.Page) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	res, err := p.Context(ctx).Eval(`() => document.hasFocus()`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (h *Host) page(ctx context.Context, id string) (*rod.Page, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		if string(p.TargetID) == id {
			h.watch(p)
			return p.Context(ctx), nil
		}
	}
	return nil, fmt.Errorf("page %s is gone", id)
}

// Register installs the browser command set on d.
func (h *Host) Register(d *dispatch.Dispatcher) {
	d.Handle(protocol.CommandExecuteJS, h.executeJS)
	d.Handle(protocol.CommandScreenshot, h.screenshot)
	d.HandleGlobal(protocol.CommandWindowList, h.windowList)
	d.Handle(protocol.CommandWindowInfo, h.windowInfo)
	d.Handle(protocol.CommandWindowResize, h.windowResize)
	d.Handle(protocol.CommandNavigate, h.navigate)
	d.Handle(protocol.CommandConsoleLogs, h.consoleLogs)
	d.Handle(protocol.CommandDOMSnapshot, h.domSnapshot)
	d.Handle(protocol.CommandInteract, h.interact)
	d.Handle(protocol.CommandWaitFor, h.waitFor)
}

func (h *Host) executeJS(ctx context.Context, call *dispatch.Call) (any, error) {
	script, ok := call.String("script")
	if !ok {
		return nil, &argError{key: "script"}
	}
	timeout := DefaultScriptTimeout
	if secs, present, err := call.Int("timeout"); err != nil {
		return nil, err
	} else if present && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := p.Context(evalCtx).Eval(wrapScript(prepareScript(script)))
	if err != nil {
		if errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return nil, &scriptError{timeout: timeout}
		}
		return nil, &scriptError{err: err}
	}
	return res.Value.Val(), nil
}

func (h *Host) screenshot(ctx context.Context, call *dispatch.Call) (any, error) {
	format := call.StringOr("format", "png")
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	mime := "image/png"
	if format == "jpeg" || format == "jpg" {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		mime = "image/jpeg"
	}
	if q, present, err := call.Int("quality"); err != nil {
		return nil, err
	} else if present {
		q = min(max(q, 0), 100)
		req.Quality = &q
	}

	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	data, err := p.Screenshot(false, req)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

// WindowSummary is one entry of window_list.
type WindowSummary struct {
	Label   string `json:"label"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Focused bool   `json:"focused"`
}

func (h *Host) windowList(ctx context.Context, _ *dispatch.Call) (any, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}
	out := make([]WindowSummary, 0, len(pages))
	for _, p := range pages {
		h.watch(p)
		info, err := p.Context(ctx).Info()
		if err != nil {
			return nil, err
		}
		focused, _ := h.hasFocus(ctx, p)
		out = append(out, WindowSummary{
			Label:   string(p.TargetID),
			Title:   info.Title,
			URL:     info.URL,
			Focused: focused,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// WindowInfo is the data returned by window_info.
type WindowInfo struct {
	Label   string `json:"label"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Focused bool   `json:"focused"`
	Visible bool   `json:"visible"`
}

const geometryJS = `() => ({
	width: window.innerWidth,
	height: window.innerHeight,
	x: window.screenX,
	y: window.screenY,
	focused: document.hasFocus(),
	visible: document.visibilityState === 'visible'
})`

func (h *Host) windowInfo(ctx context.Context, call *dispatch.Call) (any, error) {
	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	info, err := p.Info()
	if err != nil {
		return nil, err
	}
	res, err := p.Eval(geometryJS)
	if err != nil {
		return nil, fmt.Errorf("read geometry: %w", err)
	}
	out := WindowInfo{Label: call.Target, Title: info.Title, URL: info.URL}
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	out.Label, out.Title, out.URL = call.Target, info.Title, info.URL
	return out, nil
}

func positiveInt(call *dispatch.Call, key string) (int, error) {
	n, present, err := call.Int(key)
	if !present {
		return 0, &argError{key: key}
	}
	if err != nil || n <= 0 {
		return 0, &argError{key: key, want: "a positive integer", got: call.Args[key]}
	}
	return n, nil
}

func (h *Host) windowResize(ctx context.Context, call *dispatch.Call) (any, error) {
	width, err := positiveInt(call, "width")
	if err != nil {
		return nil, err
	}
	height, err := positiveInt(call, "height")
	if err != nil {
		return nil, err
	}

	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: width, Height: height}); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Resized to %dx%d", width, height), nil
}

func (h *Host) navigate(ctx context.Context, call *dispatch.Call) (any, error) {
	url, ok := call.String("url")
	if !ok || url == "" {
		return nil, &argError{key: "url"}
	}
	p, err := h.page(ctx, call.Target)
	if err != nil {
		return nil, err
	}
	if err := p.Navigate(url); err != nil {
		return nil, err
	}
	if err := p.WaitLoad(); err != nil {
		return nil, err
	}
	info, err := p.Info()
	if err != nil {
		return nil, err
	}
	return map[string]string{"url": info.URL, "title": info.Title}, nil
}
