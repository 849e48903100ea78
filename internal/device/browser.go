package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	defaultActionTimeout = 60 * time.Second
	defaultWaitTimeout   = 5 * time.Second
	indexAttribute       = "data-uipilot-index"
)

// elementsJS tags every visible interactable node with an index attribute and
// returns a description of each one.
const elementsJS = `(() => {
  const nodes = document.querySelectorAll('a,button,input,select,textarea,label,[role=button],[role=link],[role=checkbox],[role=tab],[onclick]');
  const out = [];
  let i = 0;
  for (const el of nodes) {
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    el.setAttribute('` + indexAttribute + `', String(i));
    const text = (el.innerText || el.value || el.getAttribute('aria-label') || el.getAttribute('placeholder') || '').trim().slice(0, 80);
    out.push({index: i, tag: el.tagName.toLowerCase(), role: el.getAttribute('role') || '', text: text, selector: '[` + indexAttribute + `="' + i + '"]'});
    i++;
  }
  return out;
})()`

const visibleJS = `((sel) => {
  const el = document.querySelector(sel);
  if (!el) return false;
  const r = el.getBoundingClientRect();
  const st = getComputedStyle(el);
  return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
})(%s)`

// BrowserOptions configures the chromedp-backed device.
type BrowserOptions struct {
	Headless      bool
	StartURL      string
	Screenshots   bool
	ActionTimeout time.Duration
}

// Browser drives a Chrome instance through the DevTools protocol.
// The browser is started lazily on first use and stays open until Close.
type Browser struct {
	opts BrowserOptions

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowser(opts BrowserOptions) *Browser {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	return &Browser{opts: opts}
}

func (b *Browser) Platform() string {
	return "web"
}

func (b *Browser) init() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	tasks := chromedp.Tasks{}
	if b.opts.StartURL != "" {
		tasks = append(tasks, chromedp.Navigate(b.opts.StartURL))
	}
	if err := chromedp.Run(b.browserCtx, tasks); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return b.browserCtx, nil
}

func (b *Browser) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser down. A later call to Execute or Snapshot starts a new one.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
	return nil
}

func (b *Browser) Execute(ctx context.Context, a Action) error {
	browserCtx, err := b.init()
	if err != nil {
		return actionErr(a, err)
	}

	actionCtx, cancel := context.WithTimeout(browserCtx, b.opts.ActionTimeout)
	defer cancel()
	// Abort the action when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	switch a.Type {
	case ActionNavigate:
		if a.URL == "" {
			return actionErr(a, fmt.Errorf("url is required"))
		}
		err = chromedp.Run(actionCtx, chromedp.Navigate(a.URL))

	case ActionClick:
		if a.Selector == "" {
			return actionErr(a, fmt.Errorf("selector is required"))
		}
		err = b.requireVisible(actionCtx, a.Selector, waitTimeout(a))
		if err == nil {
			err = chromedp.Run(actionCtx, chromedp.Click(a.Selector, chromedp.ByQuery))
		}

	case ActionTypeText:
		if a.Selector == "" {
			return actionErr(a, fmt.Errorf("selector is required"))
		}
		err = b.requireVisible(actionCtx, a.Selector, waitTimeout(a))
		if err == nil {
			err = chromedp.Run(actionCtx, chromedp.SendKeys(a.Selector, a.Text, chromedp.ByQuery))
		}

	case ActionPressKey:
		if a.Key == "" {
			return actionErr(a, fmt.Errorf("key is required"))
		}
		err = chromedp.Run(actionCtx, chromedp.KeyEvent(a.Key))

	case ActionBack:
		err = chromedp.Run(actionCtx, chromedp.NavigateBack())

	case ActionScroll:
		if a.Selector != "" {
			err = chromedp.Run(actionCtx, chromedp.ScrollIntoView(a.Selector, chromedp.ByQuery))
			break
		}
		delta := "window.innerHeight * 0.8"
		if a.Direction == "up" {
			delta = "-" + delta
		}
		err = chromedp.Run(actionCtx, chromedp.Evaluate("window.scrollBy(0, "+delta+")", nil))

	case ActionWait:
		if a.Selector != "" {
			err = b.requireVisible(actionCtx, a.Selector, waitTimeout(a))
			break
		}
		select {
		case <-time.After(waitTimeout(a)):
		case <-actionCtx.Done():
			err = actionCtx.Err()
		}

	case ActionAssertVisible:
		err = b.requireVisible(actionCtx, a.Selector, waitTimeout(a))

	case ActionAssertNotVisible:
		var visible bool
		visible, err = b.visible(actionCtx, a.Selector)
		if err == nil && visible {
			err = fmt.Errorf("%s is visible", a.Selector)
		}

	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedAction, a.Type)
	}

	return actionErr(a, err)
}

func (b *Browser) visible(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var visible bool
	err = chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(visibleJS, quoted), &visible))
	return visible, err
}

func (b *Browser) requireVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if selector == "" {
		return fmt.Errorf("selector is required")
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", ErrNoElement, selector)
		}
		return err
	}
	return nil
}

func (b *Browser) Snapshot(ctx context.Context) (Snapshot, error) {
	browserCtx, err := b.init()
	if err != nil {
		return Snapshot{}, err
	}

	snapCtx, cancel := context.WithTimeout(browserCtx, b.opts.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	snap := Snapshot{Platform: b.Platform()}
	var html string
	err = chromedp.Run(snapCtx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(elementsJS, &snap.Elements),
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture page state: %w", err)
	}

	if b.opts.Screenshots {
		if err := chromedp.Run(snapCtx, chromedp.CaptureScreenshot(&snap.Screenshot)); err != nil {
			return Snapshot{}, fmt.Errorf("failed to capture screenshot: %w", err)
		}
	}

	title, text := ReadableText(html, snap.URL)
	if snap.Title == "" {
		snap.Title = title
	}
	snap.Text = text
	return snap, nil
}

func waitTimeout(a Action) time.Duration {
	if a.TimeoutMs > 0 {
		return time.Duration(a.TimeoutMs) * time.Millisecond
	}
	return defaultWaitTimeout
}
