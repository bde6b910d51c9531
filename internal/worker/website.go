package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/shaiso/Harvester/internal/browser"
	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/telemetry"
)

// WebsiteStrategy — website_html: навигация через Navigator,
// затем разметка, title и meta-теги страницы.
//
// Payload:
//
//	timeout_ms            таймаут навигации (по умолчанию Defaults.BaseTimeout)
//	challenge_timeout_ms  ожидание challenge
//	progressive_retry     networkidle → load → domcontentloaded (по умолчанию true)
//	wait_until            стратегия без progressive_retry
//	human_delay           случайная пауза перед навигацией (по умолчанию true)
//	include_markdown      добавить markdown-версию страницы
type WebsiteStrategy struct {
	Navigator *browser.Navigator
	Defaults  browser.NavigateOptions
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

var _ Strategy = (*WebsiteStrategy)(nil)

// Options собирает параметры навигации из payload task.
func (s *WebsiteStrategy) Options(payload map[string]any) browser.NavigateOptions {
	opts := browser.NavigateOptions{
		BaseTimeout:      payloadMillis(payload, "timeout_ms", s.Defaults.BaseTimeout),
		ChallengeTimeout: payloadMillis(payload, "challenge_timeout_ms", s.Defaults.ChallengeTimeout),
		ProgressiveRetry: payloadBool(payload, "progressive_retry", true),
		Strategy:         browser.WaitLoad,
		HumanDelay:       payloadBool(payload, "human_delay", true),
	}
	if v, ok := payloadString(payload, "wait_until"); ok {
		opts.Strategy = browser.ParseWaitStrategy(v)
	} else if s.Defaults.Strategy != "" {
		opts.Strategy = s.Defaults.Strategy
	}
	return opts
}

func (s *WebsiteStrategy) Execute(ctx context.Context, page browser.Page, task *domain.Task) (map[string]any, error) {
	nav := navigate(ctx, s.Navigator, s.Metrics, page, task.URL, s.Options(task.Payload))
	diag := map[string]any{
		"final_url":              nav.FinalURL,
		"cloudflare_encountered": nav.CloudflareEncountered,
	}
	if err := nav.Error(); err != nil {
		return diag, err
	}

	html, err := page.Content(ctx)
	if err != nil {
		return diag, fmt.Errorf("read content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return diag, fmt.Errorf("parse html: %w", err)
	}

	title, err := page.Title(ctx)
	if err != nil || title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	result := map[string]any{
		"html":                   html,
		"title":                  title,
		"meta":                   extractMeta(doc),
		"final_url":              nav.FinalURL,
		"cloudflare_encountered": nav.CloudflareEncountered,
	}

	if payloadBool(task.Payload, "include_markdown", false) {
		markdown, err := toMarkdown(html, nav.FinalURL)
		if err != nil {
			s.logger().Warn("markdown conversion failed", "task_id", task.ID, "error", err)
		} else {
			result["markdown"] = markdown
		}
	}

	return result, nil
}

func (s *WebsiteStrategy) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// extractMeta собирает meta-теги name/property → content.
// При повторе ключа остаётся первое значение.
func extractMeta(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	doc.Find("meta[content]").Each(func(_ int, sel *goquery.Selection) {
		key, ok := sel.Attr("name")
		if !ok || key == "" {
			key, ok = sel.Attr("property")
		}
		if !ok || key == "" {
			key, ok = sel.Attr("http-equiv")
		}
		if !ok || key == "" {
			return
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := meta[key]; seen {
			return
		}
		content, _ := sel.Attr("content")
		meta[key] = strings.TrimSpace(content)
	})

	if charset, ok := doc.Find("meta[charset]").First().Attr("charset"); ok {
		if _, seen := meta["charset"]; !seen {
			meta["charset"] = charset
		}
	}
	return meta
}

// toMarkdown конвертирует разметку; относительные ссылки разрешаются от pageURL.
func toMarkdown(html, pageURL string) (string, error) {
	converter := md.NewConverter(pageURL, true, nil)
	return converter.ConvertString(html)
}

// navigate вызывает Navigator и учитывает исход в метриках.
func navigate(ctx context.Context, nav *browser.Navigator, metrics *telemetry.Metrics, page browser.Page, target string, opts browser.NavigateOptions) browser.NavigationResult {
	result := nav.Navigate(ctx, page, target, opts)
	switch {
	case result.Success:
		metrics.Navigation("success")
	case result.Blocked:
		metrics.Navigation("blocked")
	default:
		metrics.Navigation("failed")
	}
	return result
}
